package dataset

import (
	"fmt"
	"math/rand"
	"sort"
)

// StratifiedSplit partitions row indices 0..len(labels)-1 into train
// and test sets with approximately testFrac of each label's rows in
// the test set. Labels are processed in sorted order and shuffled with
// the seeded source, so the split is fully deterministic for a given
// (labels, testFrac, seed). Every label with at least two rows appears
// in both partitions; single-row labels stay in train.
func StratifiedSplit(labels []string, testFrac float64, seed int64) (trainIdx, testIdx []int, err error) {
	if len(labels) == 0 {
		return nil, nil, fmt.Errorf("stratified split: no rows")
	}
	if testFrac <= 0 || testFrac >= 1 {
		return nil, nil, fmt.Errorf("stratified split: test fraction %v out of (0, 1)", testFrac)
	}

	byLabel := make(map[string][]int)
	for i, l := range labels {
		byLabel[l] = append(byLabel[l], i)
	}

	ordered := make([]string, 0, len(byLabel))
	for l := range byLabel {
		ordered = append(ordered, l)
	}
	sort.Strings(ordered)

	rng := rand.New(rand.NewSource(seed))
	for _, l := range ordered {
		indices := byLabel[l]
		rng.Shuffle(len(indices), func(i, j int) {
			indices[i], indices[j] = indices[j], indices[i]
		})

		nTest := int(float64(len(indices)) * testFrac)
		if nTest == 0 && len(indices) >= 2 {
			nTest = 1
		}
		if nTest >= len(indices) {
			nTest = len(indices) - 1
		}

		testIdx = append(testIdx, indices[:nTest]...)
		trainIdx = append(trainIdx, indices[nTest:]...)
	}

	sort.Ints(trainIdx)
	sort.Ints(testIdx)
	return trainIdx, testIdx, nil
}
