package memscan

// DefaultMaxRegionSize caps candidate regions at 16 MiB. Larger private heaps
// exist on some game builds and are skipped unless the cap is raised.
const DefaultMaxRegionSize uint64 = 16 << 20

// Classifier decides which regions are worth reading.
type Classifier struct {
	MaxRegionSize uint64
}

var DefaultClassifier = Classifier{MaxRegionSize: DefaultMaxRegionSize}

// IsCandidate reports whether r looks like live game data: committed,
// writable, private and bounded in size.
func (c Classifier) IsCandidate(r MemoryRegion) bool {
	limit := c.MaxRegionSize
	if limit == 0 {
		limit = DefaultMaxRegionSize
	}
	return r.State == StateCommitted &&
		r.Protection.Writable() &&
		r.Kind == KindPrivate &&
		r.Size > 0 && r.Size <= limit
}

func IsCandidate(r MemoryRegion) bool {
	return DefaultClassifier.IsCandidate(r)
}
