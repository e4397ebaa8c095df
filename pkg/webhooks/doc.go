// Package webhooks notifies external endpoints of renewal outcomes.
//
// # Events
//
//	subscription.activated        first payment taken
//	subscription.renewed          due or retried payment taken
//	subscription.payment_retrying payment declined, retry scheduled
//	subscription.payment_failed   payment declined, subscription ended
//	subscription.expired          end date and grace period passed
//
// # Delivery
//
// Each event is POSTed as JSON to every endpoint subscribed to its type.
// Requests carry X-Subscriptions-Event, X-Subscriptions-Event-ID and, when a
// secret is set, X-Subscriptions-Signature ("sha256=" + hex HMAC of the body).
// Failed deliveries are retried with exponential backoff by RetryWorker until
// the attempt limit is reached.
//
// # Usage Example
//
//	dispatcher := webhooks.NewDispatcher(webhooks.Options{Logger: logger})
//	dispatcher.Register(&webhooks.Endpoint{
//		URL:    "https://billing.example.com/hooks",
//		Secret: "webhook-secret",
//	})
//	go webhooks.NewRetryWorker(dispatcher).Run(ctx, 30*time.Second)
//	processor := renewal.NewProcessor(store, charger, logger, cfg, renewal.WithNotifier(dispatcher))
//
// Verify signature (receiver side):
//
//	sig := r.Header.Get("X-Subscriptions-Signature")
//	if !webhooks.VerifySignature(body, sig, secret) {
//		http.Error(w, "bad signature", http.StatusUnauthorized)
//		return
//	}
package webhooks
