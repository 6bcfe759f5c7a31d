// Package subscription implements the mailing-list subscription workflow.
//
// The workflow drives one subscriber through the list's policy decision
// tree:
//
//	sanity_checks ─▶ verification_checks ─┬─▶ confirmation_checks ─┬─▶ do_subscription
//	                                      │                        ├─▶ moderation_checks
//	                                      └─▶ send_confirmation ◀──┘
//
//	send_confirmation      (pause, subscriber token) ─▶ do_confirm_verify
//	do_confirm_verify      ─▶ moderation_checks | do_subscription
//	moderation_checks      ─▶ do_subscription | get_moderator_approval
//	get_moderator_approval (pause, moderator token)  ─▶ subscribe_from_restored
//	subscribe_from_restored ─▶ do_subscription
//
// TOKEN OWNERSHIP:
//
// Exactly one of no_one, subscriber or moderator owns the current token.
// Entering a pause point always expunges the previous token and mints a new
// one, and resuming always expunges the presented token first. A token
// issued to the subscriber can therefore never be replayed as a moderator
// approval.
//
// Live Address and User objects are not persisted across a pause. The saved
// snapshot holds only the subscriber kind and identity keys; restored steps
// resolve the live objects through resolveSubscriber.
package subscription
