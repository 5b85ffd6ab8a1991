package fountain

// Select deterministically picks `degree` distinct chunk indices in
// [0, chunksCount) from `seed`. It is the single PRNG contract shared by
// the encoder and decoder: given identical (seed, degree, chunksCount) it
// always returns the same sorted, ascending slice so that XOR composition
// of the selected chunks is reproducible on both sides.
//
// The generator is a 32-bit xorshift, seeded directly with `seed` (zero is
// remapped to a fixed nonzero constant — xorshift has a fixed point at 0).
// Indices are drawn one at a time modulo chunksCount, duplicates discarded,
// until `degree` distinct indices have been collected.
//
// One case bypasses the generator: degree 1 with seed < chunksCount selects
// index seed itself. This keeps the encoder's systematic packets (seed = n,
// degree 1, data = chunk n) decodable by the same Select call.
func Select(seed uint32, degree uint16, chunksCount uint32) []uint32 {
	if chunksCount == 0 {
		return nil
	}
	if degree == 1 && seed < chunksCount {
		return []uint32{seed}
	}
	want := int(degree)
	if want > int(chunksCount) {
		want = int(chunksCount)
	}
	if want < 1 {
		want = 1
	}

	state := seed
	if state == 0 {
		state = 0x9E3779B9
	}

	seen := make(map[uint32]struct{}, want)
	indices := make([]uint32, 0, want)
	for len(indices) < want {
		state = xorshift32(state)
		idx := state % chunksCount
		if _, dup := seen[idx]; dup {
			continue
		}
		seen[idx] = struct{}{}
		indices = append(indices, idx)
	}

	sortUint32(indices)
	return indices
}

// xorshift32 advances the xorshift32 generator by one step.
func xorshift32(x uint32) uint32 {
	x ^= x << 13
	x ^= x >> 17
	x ^= x << 5
	return x
}

// sortUint32 is a small insertion sort; index sets are never large enough
// (bounded by chunksCount, and in practice by the degree distribution's
// tail) to justify pulling in sort.Slice's reflection overhead.
func sortUint32(s []uint32) {
	for i := 1; i < len(s); i++ {
		v := s[i]
		j := i - 1
		for j >= 0 && s[j] > v {
			s[j+1] = s[j]
			j--
		}
		s[j+1] = v
	}
}
