// Package vote contains the voting domain: the intent payload, the
// committed ledger row, participant identity, and the two halves of the
// pipeline around the queue.
//
// # Submission
//
// [Service.Submit] is the synchronous boundary. It validates the request
// (poll, option, participant, positive points), marshals an [Intent], and
// enqueues a job deduplicated by [JobKey] — `vote:{poll}:{participant}`.
// It returns as soon as the job is accepted; the commit happens later on
// a worker.
//
// # Processing
//
// [Processor.Process] is the worker-side protocol. The gates run in a
// fixed order — poll existence, guest exclusion, public one-shot,
// balance sufficiency — and every gate failure is a terminal
// voteflow.Rejection. The commit step inserts the ledger row and applies
// the conditional balance decrement inside one store transaction; only
// its infrastructure errors are retried. Post-commit side effects (the
// idempotency flag and the tally notification) are best-effort.
//
// # Collaborator contracts
//
// [PollStore], [BalanceStore], [Ledger], [Committer], [FlagStore], and
// [Notifier] are the external collaborators. The store backends under
// store/ implement the persistence contracts; the notify package
// implements Notifier.
package vote
