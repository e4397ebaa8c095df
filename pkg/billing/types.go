package billing

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/platinummonkey/subscriptions/pkg/currency"
	"github.com/shopspring/decimal"
)

// DefaultGroupName is the group used when looking up a basic plan without one
const DefaultGroupName = "Talent"

// PermissionSubscriptions guards the administrative surface
const PermissionSubscriptions = "subscriptions"

// Group is an authorization group a plan grants membership to
type Group struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// PaymentRetry is one step of the retry schedule for failed renewals
type PaymentRetry struct {
	ID          int64  `json:"id"`
	Iteration   uint16 `json:"iteration"`
	RetryOffset uint16 `json:"retry_offset"`
}

// PrettyOffset describes when the retry happens
func (r PaymentRetry) PrettyOffset() string {
	switch r.RetryOffset {
	case 0:
		return "immediately"
	case 1:
		return "the next day"
	default:
		return fmt.Sprintf("in %d days", r.RetryOffset)
	}
}

func (r PaymentRetry) String() string {
	return r.PrettyOffset()
}

// PlanTag labels subscription plans
type PlanTag struct {
	ID  int64  `json:"id"`
	Tag string `json:"tag"`
}

func (t PlanTag) String() string {
	return t.Tag
}

// SubscriptionPlan describes a plan independent of its pricing
type SubscriptionPlan struct {
	ID              uuid.UUID  `json:"id"`
	PlanName        string     `json:"plan_name"`
	Slug            *string    `json:"slug,omitempty"`
	PlanDescription string     `json:"plan_description,omitempty"`
	GroupID         *int64     `json:"group_id,omitempty"`
	Group           *Group     `json:"group,omitempty"`
	Tags            []PlanTag  `json:"tags"`
	GracePeriod     uint32     `json:"grace_period"`
	Costs           []PlanCost `json:"costs,omitempty"`
}

func (p SubscriptionPlan) String() string {
	return p.PlanName
}

// DisplayTags joins the first three tags, marking any remainder with an ellipsis
func (p SubscriptionPlan) DisplayTags() string {
	names := make([]string, 0, 3)
	for i, tag := range p.Tags {
		if i == 3 {
			break
		}
		names = append(names, tag.Tag)
	}
	joined := strings.Join(names, ", ")
	if len(p.Tags) > 3 {
		return joined + ", ..."
	}
	return joined
}

// Validate checks field limits
func (p SubscriptionPlan) Validate() error {
	if p.PlanName == "" {
		return fmt.Errorf("plan_name is required")
	}
	if len([]rune(p.PlanName)) > 128 {
		return fmt.Errorf("plan_name must be at most 128 characters")
	}
	if p.Slug != nil && len(*p.Slug) > 128 {
		return fmt.Errorf("slug must be at most 128 characters")
	}
	if len([]rune(p.PlanDescription)) > 512 {
		return fmt.Errorf("plan_description must be at most 512 characters")
	}
	return nil
}

// PlanCost is a price and billing frequency for a plan
type PlanCost struct {
	ID               uuid.UUID                 `json:"id"`
	PlanID           uuid.UUID                 `json:"plan_id"`
	Plan             *SubscriptionPlan         `json:"plan,omitempty"`
	Slug             *string                   `json:"slug,omitempty"`
	RecurrencePeriod uint16                    `json:"recurrence_period"`
	RecurrenceUnit   RecurrenceUnit            `json:"recurrence_unit"`
	CurrencyID       *int64                    `json:"currency_id,omitempty"`
	Currency         *currency.PaymentCurrency `json:"currency,omitempty"`
	Cost             decimal.NullDecimal       `json:"cost"`
	Active           bool                      `json:"active"`
}

// NewPlanCost returns a cost for planID with the column defaults: billed once a month, active
func NewPlanCost(planID uuid.UUID) PlanCost {
	return PlanCost{
		ID:               uuid.New(),
		PlanID:           planID,
		RecurrencePeriod: 1,
		RecurrenceUnit:   RecurrenceMonth,
		Active:           true,
	}
}

// Validate checks the recurrence settings
func (c PlanCost) Validate() error {
	if !c.RecurrenceUnit.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidRecurrenceUnit, c.RecurrenceUnit)
	}
	if c.RecurrencePeriod < 1 {
		return ErrInvalidRecurrencePeriod
	}
	if c.Slug != nil && len(*c.Slug) > 128 {
		return fmt.Errorf("slug must be at most 128 characters")
	}
	return nil
}

// NextBillingDatetime returns when a subscription billed at current is next due.
// One-time costs are never due again and return false.
func (c PlanCost) NextBillingDatetime(current time.Time) (time.Time, bool) {
	micros, ok := c.RecurrenceUnit.Delta(c.RecurrencePeriod)
	if !ok {
		return time.Time{}, false
	}
	return addMicros(current, micros), true
}

// DisplayRecurrentUnitText renders the unit alone ("per month")
func (c PlanCost) DisplayRecurrentUnitText() string {
	return units[c.RecurrenceUnit].singular
}

// DisplayBillingFrequencyText renders unit and period ("every 3 months")
func (c PlanCost) DisplayBillingFrequencyText() string {
	info := units[c.RecurrenceUnit]
	if c.RecurrenceUnit == RecurrenceOnce || c.RecurrencePeriod == 1 {
		return info.singular
	}
	return fmt.Sprintf("every %d %s", c.RecurrencePeriod, info.plural)
}

// CostAsFloat returns the cost as a float, zero when unset
func (c PlanCost) CostAsFloat() float64 {
	if !c.Cost.Valid {
		return 0
	}
	f, _ := c.Cost.Decimal.Float64()
	return f
}

// FormattedCost renders the cost with the attached currency's rules
func (c PlanCost) FormattedCost() string {
	amount := decimal.Zero
	if c.Cost.Valid {
		amount = c.Cost.Decimal
	}
	if c.Currency == nil {
		return amount.StringFixed(2)
	}
	return currency.Format(*c.Currency, amount, currency.WithGrouping())
}

func (c PlanCost) String() string {
	planName, symbol := "", ""
	if c.Plan != nil {
		planName = c.Plan.PlanName
	}
	if c.Currency != nil {
		symbol = c.Currency.CurrencySymbol
	}
	return fmt.Sprintf("%s @ %s %s %s", planName, symbol, floatText(c.CostAsFloat()), c.DisplayBillingFrequencyText())
}

// floatText always keeps a fractional part ("10.0", "9.99")
func floatText(f float64) string {
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}

// RenewalStatus tracks where a subscription is in the renewal cycle
type RenewalStatus string

const (
	RenewalRunning  RenewalStatus = "R"
	RenewalRetrying RenewalStatus = "T"
	RenewalFailed   RenewalStatus = "F"
)

// Label returns the display name of the status
func (s RenewalStatus) Label() string {
	switch s {
	case RenewalRunning:
		return "Running"
	case RenewalRetrying:
		return "Retrying subscription renewal"
	case RenewalFailed:
		return "Failed"
	}
	return string(s)
}

// Valid reports whether s is a known status
func (s RenewalStatus) Valid() bool {
	return s == RenewalRunning || s == RenewalRetrying || s == RenewalFailed
}

// UserSubscription enrols a user in a plan cost
type UserSubscription struct {
	ID               uuid.UUID     `json:"id"`
	UserID           *int64        `json:"user_id,omitempty"`
	PlanCostID       *uuid.UUID    `json:"subscription_id,omitempty"`
	PlanCost         *PlanCost     `json:"subscription,omitempty"`
	DateBillingStart *time.Time    `json:"date_billing_start,omitempty"`
	DateBillingEnd   *time.Time    `json:"date_billing_end,omitempty"`
	DateBillingLast  *time.Time    `json:"date_billing_last,omitempty"`
	DateBillingNext  *time.Time    `json:"date_billing_next,omitempty"`
	Active           bool          `json:"active"`
	Cancelled        bool          `json:"cancelled"`
	RenewalStatus    RenewalStatus `json:"renewal_status"`
	RetryID          *int64        `json:"retry_id,omitempty"`
	Retry            *PaymentRetry `json:"retry,omitempty"`

	// DateBillingAttempt is the time of the latest declined charge. It is
	// cleared once a charge goes through.
	DateBillingAttempt *time.Time `json:"date_billing_attempt,omitempty"`
}

// NewUserSubscription returns an active, running subscription starting at start
func NewUserSubscription(userID int64, planCostID uuid.UUID, start time.Time) UserSubscription {
	return UserSubscription{
		ID:               uuid.New(),
		UserID:           &userID,
		PlanCostID:       &planCostID,
		DateBillingStart: &start,
		Active:           true,
		RenewalStatus:    RenewalRunning,
	}
}

// TransactionAgo returns the whole days between the last billing and now.
// Partial days are floored, so a charge 23 hours ago is 0 days old.
// The second result is false when the subscription was never billed.
func (s UserSubscription) TransactionAgo(now time.Time) (int, bool) {
	if s.DateBillingLast == nil {
		return 0, false
	}
	return daysSince(*s.DateBillingLast, now), true
}

func daysSince(then, now time.Time) int {
	diff := now.Sub(then)
	days := int(diff / (24 * time.Hour))
	if diff < 0 && diff%(24*time.Hour) != 0 {
		days--
	}
	return days
}

// ForRetry reports whether the attached retry's offset has elapsed. The
// offset counts from the latest declined charge, falling back to the last
// billing for subscriptions that have no recorded attempt.
func (s UserSubscription) ForRetry(now time.Time) bool {
	if s.Retry == nil {
		return false
	}
	if s.DateBillingAttempt != nil {
		return daysSince(*s.DateBillingAttempt, now) >= int(s.Retry.RetryOffset)
	}
	ago, ok := s.TransactionAgo(now)
	if !ok {
		return false
	}
	return ago >= int(s.Retry.RetryOffset)
}

func (s UserSubscription) String() string {
	plan := ""
	if s.PlanCost != nil && s.PlanCost.Plan != nil {
		plan = s.PlanCost.Plan.PlanName
	}
	return fmt.Sprintf("%s for %s", userText(s.UserID), plan)
}

func userText(id *int64) string {
	if id == nil {
		return "None"
	}
	return strconv.FormatInt(*id, 10)
}

// TransactionType classifies a subscription transaction
type TransactionType string

const (
	TransactionPayment TransactionType = "P"
	TransactionRefund  TransactionType = "R"
	TransactionCancel  TransactionType = "C"
)

// Label returns the display name of the type
func (t TransactionType) Label() string {
	switch t {
	case TransactionPayment:
		return "Payment"
	case TransactionRefund:
		return "Refund"
	case TransactionCancel:
		return "Cancellation"
	}
	return string(t)
}

// Valid reports whether t is a known type
func (t TransactionType) Valid() bool {
	return t == TransactionPayment || t == TransactionRefund || t == TransactionCancel
}

// SubscriptionTransaction records money moving for a subscription
type SubscriptionTransaction struct {
	ID              uuid.UUID           `json:"id"`
	UserID          *int64              `json:"user_id,omitempty"`
	PlanCostID      *uuid.UUID          `json:"subscription_id,omitempty"`
	PlanCost        *PlanCost           `json:"subscription,omitempty"`
	DateTransaction time.Time           `json:"date_transaction"`
	Amount          decimal.NullDecimal `json:"amount"`
	TransactionType TransactionType     `json:"transaction_type"`
}

func (t SubscriptionTransaction) String() string {
	plan, symbol := "", ""
	if t.PlanCost != nil {
		if t.PlanCost.Plan != nil {
			plan = t.PlanCost.Plan.PlanName
		}
		if t.PlanCost.Currency != nil {
			symbol = t.PlanCost.Currency.CurrencySymbol
		}
	}
	amount := "None"
	if t.Amount.Valid {
		amount = t.Amount.Decimal.String()
	}
	return fmt.Sprintf("%s for %s @ %s %s", userText(t.UserID), plan, symbol, amount)
}

// PlanList is a curated, displayable collection of plan costs
type PlanList struct {
	ID       int64            `json:"id"`
	Title    string           `json:"title"`
	Slug     *string          `json:"slug,omitempty"`
	Subtitle string           `json:"subtitle"`
	Header   string           `json:"header"`
	Footer   string           `json:"footer"`
	Active   bool             `json:"active"`
	Details  []PlanListDetail `json:"details,omitempty"`
}

func (l PlanList) String() string {
	return l.Title
}

// PlanListDetail places one plan cost on a plan list
type PlanListDetail struct {
	ID                  int64     `json:"id"`
	PlanCostID          uuid.UUID `json:"plan_id"`
	PlanCost            *PlanCost `json:"plan,omitempty"`
	PlanListID          int64     `json:"plan_list_id"`
	HTMLContent         string    `json:"html_content"`
	SubscribeButtonText string    `json:"subscribe_button_text"`
	Order               uint32    `json:"order"`
	Active              bool      `json:"active"`

	// PlanListTitle is read with the detail for display only
	PlanListTitle string `json:"-"`
}

// NewPlanListDetail returns a detail with the column defaults
func NewPlanListDetail(planListID int64, planCostID uuid.UUID) PlanListDetail {
	return PlanListDetail{
		PlanCostID:          planCostID,
		PlanListID:          planListID,
		SubscribeButtonText: "Subscribe",
		Order:               1,
		Active:              true,
	}
}

func (d PlanListDetail) String() string {
	cost := ""
	if d.PlanCost != nil {
		cost = d.PlanCost.String()
	}
	list := d.PlanListTitle
	if list == "" {
		list = strconv.FormatInt(d.PlanListID, 10)
	}
	return fmt.Sprintf("Plan List %s - %s", list, cost)
}
