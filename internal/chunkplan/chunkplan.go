// Package chunkplan implements ChunkPlanner (spec.md §4.5, component
// C5): deterministic partitioning of an input-file list into chunks,
// with stable chunk-index assignment across resubmission attempts.
package chunkplan

import "slices"

// Chunk is one partition of the input-file list (spec.md §3).
type Chunk struct {
	Index int
	Files []string
}

// EffectiveNFilesPerJob resolves the effective files-per-job count by
// priority (spec.md §4.5): CLI override beats a per-sample value beats
// the config default; an integer split divisor further reduces the
// result (floor, minimum 1). A value of 0 for override or perSample
// means "not set".
func EffectiveNFilesPerJob(override, perSample, configDefault, split int) int {
	n := configDefault
	if perSample > 0 {
		n = perSample
	}
	if override > 0 {
		n = override
	}
	if split > 1 {
		n = n / split
	}
	if n < 1 {
		n = 1
	}
	return n
}

// Plan partitions files into chunks of size nfilesPerJob. files are
// sorted lexicographically first to give a deterministic partition.
//
// When fixed is non-empty (resubmission), those indices are reserved:
// the planner scans indices starting at 0 and skips any index already
// present in fixed, assigning the next file-chunk to the next free
// index. This guarantees that a given index maps to the same files[]
// across resubmissions (spec.md §3's stability invariant), since fixed
// is expected to be the chunk_map_surviving carried over from the
// prior attempt.
func Plan(files []string, nfilesPerJob int, fixed map[int][]string) []Chunk {
	if nfilesPerJob < 1 {
		nfilesPerJob = 1
	}

	sorted := slices.Clone(files)
	slices.Sort(sorted)

	var chunks []Chunk
	idx := 0
	for start := 0; start < len(sorted); start += nfilesPerJob {
		end := min(start+nfilesPerJob, len(sorted))
		for fixed[idx] != nil {
			idx++
		}
		chunks = append(chunks, Chunk{Index: idx, Files: sorted[start:end]})
		idx++
	}
	return chunks
}
