package search

// Pruner applies the configured beam policies to an active list. The
// policies themselves live in the list variants; the pruner is the seam
// that lets a search manager swap pruning behavior.
type Pruner interface {
	StartRecognition()
	Prune(list ActiveList) ActiveList
	StopRecognition()
}

// SimplePruner performs standard absolute/relative beam pruning by
// committing the list.
type SimplePruner struct{}

func (SimplePruner) StartRecognition() {}

func (SimplePruner) Prune(list ActiveList) ActiveList { return list.Commit() }

func (SimplePruner) StopRecognition() {}

// NullPruner performs no pruning; every grown token survives.
type NullPruner struct{}

func (NullPruner) StartRecognition() {}

func (NullPruner) Prune(list ActiveList) ActiveList { return list }

func (NullPruner) StopRecognition() {}
