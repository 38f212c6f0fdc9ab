package sync

import enc "github.com/named-data/ndnd/std/encoding"

// Notifier fans the flat onUpdate callback out to per-prefix
// subscribers, built on SimplePs so a caller tracking many producer
// prefixes doesn't have to filter MissingDataInfo.Prefix itself on
// every batch.
type Notifier struct {
	ps SimplePs[MissingDataInfo]
}

// NewNotifier returns an empty Notifier.
func NewNotifier() *Notifier {
	ps := NewSimplePs[MissingDataInfo]()
	return &Notifier{ps: ps}
}

// Subscribe delivers every MissingDataInfo update whose Prefix falls
// under prefix to callback.
func (n *Notifier) Subscribe(prefix enc.Name, callback func(MissingDataInfo)) error {
	return n.ps.Subscribe(prefix, callback)
}

// Unsubscribe removes prefix's subscription, if any.
func (n *Notifier) Unsubscribe(prefix enc.Name) {
	n.ps.Unsubscribe(prefix)
}

// OnUpdate is the func([]MissingDataInfo) to pass as NewSyncEngine's
// onUpdate, dispatching each entry to its matching subscribers.
func (n *Notifier) OnUpdate(updates []MissingDataInfo) {
	for _, u := range updates {
		n.ps.Publish(u.Prefix, u)
	}
}
