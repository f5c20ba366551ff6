package module

// Mapping describes where a shard of the model lives in the tensor-parallel
// world: the participating group, this process's rank, and the group width.
type Mapping struct {
	WorldSize int
	Rank      int
	TPSize    int
}

// SingleRank is the mapping for a non-parallel build.
func SingleRank() Mapping {
	return Mapping{WorldSize: 1, Rank: 0, TPSize: 1}
}

// NewMapping builds a tensor-parallel-only mapping.
func NewMapping(worldSize, rank int) Mapping {
	return Mapping{WorldSize: worldSize, Rank: rank, TPSize: worldSize}
}

// TPGroup returns the ranks participating in this shard's collective ops.
func (m Mapping) TPGroup() []int {
	group := make([]int, m.TPSize)
	for i := range group {
		group[i] = i
	}
	return group
}
