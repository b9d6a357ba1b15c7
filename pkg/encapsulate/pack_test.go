package encapsulate

import (
	"reflect"
	"testing"
)

func TestGreedyPartitionRespectsMaxLayers(t *testing.T) {
	ids := []string{"a", "b", "c", "d", "e"}
	sizes := map[string]int64{"a": 100, "b": 100, "c": 1, "d": 1, "e": 1}

	buckets := greedyPartition(ids, sizes, 2)
	if len(buckets) != 2 {
		t.Fatalf("len(buckets) = %d, want 2", len(buckets))
	}

	var seen []string
	for _, b := range buckets {
		seen = append(seen, b...)
	}
	if !reflect.DeepEqual(seen, ids) {
		t.Errorf("buckets cover %v, want %v in order", seen, ids)
	}
}

func TestGreedyPartitionOnePerLayerWhenRoom(t *testing.T) {
	ids := []string{"a", "b", "c"}
	sizes := map[string]int64{"a": 1, "b": 1, "c": 1}

	buckets := greedyPartition(ids, sizes, 10)
	if len(buckets) != 3 {
		t.Fatalf("len(buckets) = %d, want 3", len(buckets))
	}
	for i, b := range buckets {
		if len(b) != 1 || b[0] != ids[i] {
			t.Errorf("bucket %d = %v, want [%s]", i, b, ids[i])
		}
	}
}

func TestGreedyPartitionDeterministic(t *testing.T) {
	ids := []string{"a", "b", "c", "d", "e", "f", "g"}
	sizes := map[string]int64{"a": 10, "b": 20, "c": 5, "d": 40, "e": 1, "f": 2, "g": 30}

	first := greedyPartition(ids, sizes, 3)
	second := greedyPartition(ids, sizes, 3)
	if !reflect.DeepEqual(first, second) {
		t.Errorf("partition is not deterministic:\n%v\n%v", first, second)
	}
}

func TestMirrorPriorLayersPreservesStructure(t *testing.T) {
	orderedIDs := []string{"a", "b", "c", "d"}
	prior := [][]string{{"b", "a"}, {"c"}}

	buckets := mirrorPriorLayers(orderedIDs, prior)
	want := [][]string{{"a", "b"}, {"c"}, {"d"}}
	if !reflect.DeepEqual(buckets, want) {
		t.Errorf("buckets = %v, want %v", buckets, want)
	}
}

func TestMirrorPriorLayersDropsRemovedIDs(t *testing.T) {
	orderedIDs := []string{"a", "c"}
	prior := [][]string{{"a", "b"}, {"c"}}

	buckets := mirrorPriorLayers(orderedIDs, prior)
	want := [][]string{{"a"}, {"c"}}
	if !reflect.DeepEqual(buckets, want) {
		t.Errorf("buckets = %v, want %v", buckets, want)
	}
}
