// Package ports defines the interfaces between the dispatch pipeline and
// its collaborators: the event queue, the conversation state store, the
// operator notifier and the per-event processor. Adapters implement these
// ports; the pipeline depends only on the interfaces.
//
// The package also ships reusable contract suites (RunEventQueueContract,
// RunStateStoreContract) so every adapter is verified against the same
// behavioral expectations.
package ports
