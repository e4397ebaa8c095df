// Package renewal bills, retries and expires user subscriptions.
//
// A Processor run takes four steps in order:
//
//   - expiry: subscriptions past their end date and the plan's grace period
//     are deactivated and the user leaves the plan's group
//   - new: subscriptions that started but were never billed take their first
//     payment and the user joins the plan's group
//   - due: running subscriptions whose next billing date has passed are
//     charged; a declined charge starts the retry schedule
//   - retry: retrying subscriptions whose retry offset has elapsed are charged
//     again; when the schedule runs out the subscription fails
//
// Charges go through a Charger. Runs on several replicas are serialised with
// a Locker, normally the Redis lock from storage/postgres.
package renewal
