/*
Package metrics defines and registers the Prometheus metrics exposed by
pacman-ostree's composition pipeline: commit generation and checkout,
the object store, the layered-state engine, the encapsulator, and
deployment. Metrics are exposed via an HTTP handler for scraping.

# Catalog

Commit Generator:
  - pacmanostree_commits_generated_total{outcome}
  - pacmanostree_commit_generate_duration_seconds
  - pacmanostree_commit_checkout_duration_seconds

Object store:
  - pacmanostree_objects_written_total{kind}
  - pacmanostree_objects_deduped_total
  - pacmanostree_store_size_bytes

Layered-state engine:
  - pacmanostree_packages_installed_total
  - pacmanostree_packages_removed_total
  - pacmanostree_rebuild_duration_seconds

Encapsulator:
  - pacmanostree_encapsulations_total{outcome}
  - pacmanostree_encapsulation_duration_seconds
  - pacmanostree_layers_produced
  - pacmanostree_layer_size_bytes

Deployment:
  - pacmanostree_deployments_total{status}
  - pacmanostree_deployment_duration_seconds

Commit Generator tree walk:
  - pacmanostree_special_files_skipped_total

# Usage

	timer := metrics.NewTimer()
	sum, err := commit.GenerateFromRootfs(ctx, gw, root, ...)
	timer.ObserveDuration(metrics.CommitGenerateDuration)
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metrics.CommitsGeneratedTotal.WithLabelValues(outcome).Inc()
*/
package metrics
