// Deployment staging: the last step of Rebuild, invoked only when the
// caller asks for deploy=true. Shells out to the external deployment
// tool named by the component design's external interfaces: given an
// OS name and a commit checksum, it stages that commit as a new
// bootloader entry and reports back which deployment slot it landed
// in. Requires root. Grounded on pkg/pacman's subprocess-invocation
// pattern (capture stdout/stderr, wrap non-zero exits as
// subprocess-failed).
package layering

import (
	"bufio"
	"bytes"
	"context"
	"os/exec"
	"strconv"
	"strings"
	"syscall"

	"github.com/ImmutableArch/pacman-ostree/pkg/metrics"
	"github.com/ImmutableArch/pacman-ostree/pkg/types"
)

// deployToolName is the external deployment binary this package shells
// out to. It is expected to print a single line "slot: N" on success.
const deployToolName = "pacman-ostree-deploy"

// Deploy stages commit as a new deployment of osName and returns the
// slot index the tool assigned it. Requires root, matching every other
// mutating external collaborator in the component design.
func Deploy(ctx context.Context, osName string, commit types.Checksum) (slot int, resultErr error) {
	timer := metrics.NewTimer()
	defer func() {
		timer.ObserveDuration(metrics.DeploymentDuration)
		status := "ok"
		if resultErr != nil {
			status = "error"
		}
		metrics.DeploymentsTotal.WithLabelValues(status).Inc()
	}()

	if syscall.Geteuid() != 0 {
		return 0, types.Newf(types.ErrConfiguration, "deploy requires root privileges (EUID != 0)")
	}

	cmd := exec.CommandContext(ctx, deployToolName, "--os", osName, "--stage", commit.String())
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return 0, types.Wrap(types.ErrSubprocessFailed, err,
			"%s failed\nstdout:\n%s\nstderr:\n%s", deployToolName, stdout.String(), stderr.String())
	}

	slot, err := parseSlotIndex(stdout.String())
	if err != nil {
		return 0, types.Wrap(types.ErrEncoding, err, "parse %s output: %q", deployToolName, stdout.String())
	}
	return slot, nil
}

// parseSlotIndex scans the tool's stdout for a "slot: N" line and
// returns N. Any other output lines (progress, warnings) are ignored.
func parseSlotIndex(output string) (int, error) {
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		const prefix = "slot:"
		if !strings.HasPrefix(line, prefix) {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(line[len(prefix):]))
		if err != nil {
			return 0, err
		}
		return n, nil
	}
	return 0, types.Newf(types.ErrEncoding, "no \"slot: N\" line found in deploy tool output")
}
