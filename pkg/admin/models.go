package admin

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/platinummonkey/subscriptions/pkg/billing"
	"github.com/platinummonkey/subscriptions/pkg/currency"
	"github.com/platinummonkey/subscriptions/pkg/storage"
	"github.com/shopspring/decimal"
)

// RegisterModels registers the subscription models on site
func RegisterModels(site *Site, store storage.Store) error {
	registrations := []struct {
		admin ModelAdmin
		model Model
	}{
		{planListAdmin(store), planListModel(store)},
		{subscriptionPlanAdmin(store), planModel(store)},
		{userSubscriptionAdmin(), subscriptionModel(store)},
		{transactionAdmin(), transactionModel(store)},
		{currencyAdmin(), currencyModel(store)},
		{retryAdmin(), retryModel(store)},
		{tagAdmin(), tagModel(store)},
	}
	for _, reg := range registrations {
		if err := site.Register(reg.admin, reg.model); err != nil {
			return fmt.Errorf("failed to register %s: %w", reg.admin.Name, err)
		}
	}
	return nil
}

func int64String(id int64) string { return strconv.FormatInt(id, 10) }

func uuidOrNil(id *uuid.UUID) interface{} {
	if id == nil || *id == uuid.Nil {
		return nil
	}
	return id.String()
}

func nonEmpty(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	return s
}

// Plan lists

type planListForm struct {
	Title    string  `json:"title"`
	Slug     *string `json:"slug"`
	Subtitle string  `json:"subtitle"`
	Header   string  `json:"header"`
	Footer   string  `json:"footer"`
	Active   bool    `json:"active"`
}

func planListAdmin(store storage.Store) ModelAdmin {
	return ModelAdmin{
		Name:              "planlist",
		VerboseName:       "plan list",
		VerboseNamePlural: "plan lists",
		Fields:            []string{"title", "slug", "subtitle", "header", "footer", "active"},
		ListDisplay:       []string{"title", "slug", "active"},
		SearchFields:      []string{"title", "slug", "subtitle"},
		ListFilter:        []string{"active"},
		Inlines: []Inline{{
			Name:   "details",
			Model:  "planlistdetail",
			Style:  Stacked,
			Fields: []string{"plan", "html_content", "subscribe_button_text", "order"},
			Extra:  1,
			rows:   planListDetailInline(store),
		}},
	}
}

func planListModel(store storage.Store) Model {
	return &binding[billing.PlanList, planListForm, int64]{
		parseID: parseInt64ID,
		idOf:    func(l *billing.PlanList) string { return int64String(l.ID) },
		list:    store.ListPlanLists,
		get:     store.GetPlanList,
		create:  store.CreatePlanList,
		update:  store.UpdatePlanList,
		remove:  store.DeletePlanList,
		blank:   func() billing.PlanList { return billing.PlanList{Active: true} },
		toForm: func(l *billing.PlanList) planListForm {
			return planListForm{Title: l.Title, Slug: l.Slug, Subtitle: l.Subtitle, Header: l.Header, Footer: l.Footer, Active: l.Active}
		},
		apply: func(f planListForm, l *billing.PlanList) error {
			l.Title, l.Slug, l.Subtitle = f.Title, nonEmpty(f.Slug), f.Subtitle
			l.Header, l.Footer, l.Active = f.Header, f.Footer, f.Active
			return nil
		},
		columns: map[string]column[billing.PlanList]{
			"title":    func(l *billing.PlanList) interface{} { return l.Title },
			"slug":     func(l *billing.PlanList) interface{} { return l.Slug },
			"subtitle": func(l *billing.PlanList) interface{} { return l.Subtitle },
			"header":   func(l *billing.PlanList) interface{} { return l.Header },
			"footer":   func(l *billing.PlanList) interface{} { return l.Footer },
			"active":   func(l *billing.PlanList) interface{} { return l.Active },
		},
	}
}

type planListDetailForm struct {
	Plan                *uuid.UUID `json:"plan"`
	HTMLContent         string     `json:"html_content"`
	SubscribeButtonText string     `json:"subscribe_button_text"`
	Order               uint32     `json:"order"`
}

func planListDetailInline(store storage.Store) InlineModel {
	return &inlineBinding[billing.PlanListDetail, planListDetailForm]{
		rows: func(ctx context.Context, parentID string) ([]billing.PlanListDetail, error) {
			listID, err := parseInt64ID(parentID)
			if err != nil {
				return nil, err
			}
			return store.ListPlanListDetails(ctx, listID, false)
		},
		blank: func(parentID string) (billing.PlanListDetail, error) {
			listID, err := parseInt64ID(parentID)
			if err != nil {
				return billing.PlanListDetail{}, err
			}
			return billing.NewPlanListDetail(listID, uuid.Nil), nil
		},
		idOf:     func(d *billing.PlanListDetail) string { return int64String(d.ID) },
		parentOf: func(d *billing.PlanListDetail) string { return int64String(d.PlanListID) },
		get: func(ctx context.Context, id string) (*billing.PlanListDetail, error) {
			detailID, err := parseInt64ID(id)
			if err != nil {
				return nil, err
			}
			return store.GetPlanListDetail(ctx, detailID)
		},
		create: store.CreatePlanListDetail,
		update: store.UpdatePlanListDetail,
		remove: func(ctx context.Context, id string) error {
			detailID, err := parseInt64ID(id)
			if err != nil {
				return err
			}
			return store.DeletePlanListDetail(ctx, detailID)
		},
		toForm: func(d *billing.PlanListDetail) planListDetailForm {
			f := planListDetailForm{HTMLContent: d.HTMLContent, SubscribeButtonText: d.SubscribeButtonText, Order: d.Order}
			if d.PlanCostID != uuid.Nil {
				id := d.PlanCostID
				f.Plan = &id
			}
			return f
		},
		apply: func(f planListDetailForm, d *billing.PlanListDetail) error {
			if f.Plan == nil || *f.Plan == uuid.Nil {
				return fmt.Errorf("plan is required")
			}
			d.PlanCostID, d.HTMLContent = *f.Plan, f.HTMLContent
			d.SubscribeButtonText, d.Order = f.SubscribeButtonText, f.Order
			return nil
		},
		columns: map[string]column[billing.PlanListDetail]{
			"plan":                  func(d *billing.PlanListDetail) interface{} { return uuidOrNil(&d.PlanCostID) },
			"html_content":          func(d *billing.PlanListDetail) interface{} { return d.HTMLContent },
			"subscribe_button_text": func(d *billing.PlanListDetail) interface{} { return d.SubscribeButtonText },
			"order":                 func(d *billing.PlanListDetail) interface{} { return d.Order },
			"active":                func(d *billing.PlanListDetail) interface{} { return d.Active },
		},
	}
}

// Subscription plans

type planForm struct {
	PlanName        string  `json:"plan_name"`
	Slug            *string `json:"slug"`
	PlanDescription string  `json:"plan_description"`
	Group           *int64  `json:"group"`
	Tags            []int64 `json:"tags"`
	GracePeriod     uint32  `json:"grace_period"`
}

func subscriptionPlanAdmin(store storage.Store) ModelAdmin {
	return ModelAdmin{
		Name:               "subscriptionplan",
		VerboseName:        "subscription plan",
		VerboseNamePlural:  "subscription plans",
		Fields:             []string{"plan_name", "slug", "plan_description", "group", "tags", "grace_period"},
		ListDisplay:        []string{"plan_name", "group", "display_tags"},
		SearchFields:       []string{"plan_name", "slug", "plan_description"},
		ListFilter:         []string{"group"},
		PrepopulatedFields: map[string][]string{"slug": {"plan_name"}},
		Inlines: []Inline{{
			Name:   "costs",
			Model:  "plancost",
			Style:  Tabular,
			Fields: []string{"slug", "recurrence_period", "recurrence_unit", "currency", "cost"},
			Extra:  0,
			rows:   planCostInline(store),
		}},
	}
}

func planModel(store storage.Store) Model {
	return &binding[billing.SubscriptionPlan, planForm, uuid.UUID]{
		parseID: parseUUID,
		idOf:    func(p *billing.SubscriptionPlan) string { return p.ID.String() },
		list:    store.ListPlans,
		get:     store.GetPlan,
		create:  store.CreatePlan,
		update:  store.UpdatePlan,
		remove:  store.DeletePlan,
		blank: func() billing.SubscriptionPlan {
			return billing.SubscriptionPlan{ID: uuid.New(), Tags: []billing.PlanTag{}}
		},
		toForm: func(p *billing.SubscriptionPlan) planForm {
			tags := make([]int64, len(p.Tags))
			for i, t := range p.Tags {
				tags[i] = t.ID
			}
			return planForm{
				PlanName: p.PlanName, Slug: p.Slug, PlanDescription: p.PlanDescription,
				Group: p.GroupID, Tags: tags, GracePeriod: p.GracePeriod,
			}
		},
		apply: func(f planForm, p *billing.SubscriptionPlan) error {
			p.PlanName, p.PlanDescription = f.PlanName, f.PlanDescription
			p.Slug = prepopulate(f.Slug, f.PlanName)
			p.GroupID, p.GracePeriod = f.Group, f.GracePeriod
			p.Tags = make([]billing.PlanTag, len(f.Tags))
			for i, id := range f.Tags {
				p.Tags[i] = billing.PlanTag{ID: id}
			}
			return nil
		},
		columns: map[string]column[billing.SubscriptionPlan]{
			"plan_name":        func(p *billing.SubscriptionPlan) interface{} { return p.PlanName },
			"slug":             func(p *billing.SubscriptionPlan) interface{} { return p.Slug },
			"plan_description": func(p *billing.SubscriptionPlan) interface{} { return p.PlanDescription },
			"group": func(p *billing.SubscriptionPlan) interface{} {
				if p.Group != nil {
					return p.Group
				}
				return p.GroupID
			},
			"tags": func(p *billing.SubscriptionPlan) interface{} {
				ids := make([]int64, len(p.Tags))
				for i, t := range p.Tags {
					ids[i] = t.ID
				}
				return ids
			},
			"grace_period": func(p *billing.SubscriptionPlan) interface{} { return p.GracePeriod },
			"display_tags": func(p *billing.SubscriptionPlan) interface{} { return p.DisplayTags() },
		},
	}
}

type planCostForm struct {
	Slug             *string             `json:"slug"`
	RecurrencePeriod uint16              `json:"recurrence_period"`
	RecurrenceUnit   string              `json:"recurrence_unit"`
	Currency         *int64              `json:"currency"`
	Cost             decimal.NullDecimal `json:"cost"`
}

func planCostInline(store storage.Store) InlineModel {
	return &inlineBinding[billing.PlanCost, planCostForm]{
		rows: func(ctx context.Context, parentID string) ([]billing.PlanCost, error) {
			costs, _, err := store.ListPlanCosts(ctx, storage.ListOptions{Filters: map[string]string{"plan": parentID}})
			return costs, err
		},
		blank: func(parentID string) (billing.PlanCost, error) {
			planID, err := parseUUID(parentID)
			if err != nil {
				return billing.PlanCost{}, err
			}
			return billing.NewPlanCost(planID), nil
		},
		idOf:     func(c *billing.PlanCost) string { return c.ID.String() },
		parentOf: func(c *billing.PlanCost) string { return c.PlanID.String() },
		get: func(ctx context.Context, id string) (*billing.PlanCost, error) {
			costID, err := parseUUID(id)
			if err != nil {
				return nil, err
			}
			return store.GetPlanCost(ctx, costID)
		},
		create: store.CreatePlanCost,
		update: store.UpdatePlanCost,
		remove: func(ctx context.Context, id string) error {
			costID, err := parseUUID(id)
			if err != nil {
				return err
			}
			return store.DeletePlanCost(ctx, costID)
		},
		toForm: func(c *billing.PlanCost) planCostForm {
			return planCostForm{
				Slug: c.Slug, RecurrencePeriod: c.RecurrencePeriod, RecurrenceUnit: string(c.RecurrenceUnit),
				Currency: c.CurrencyID, Cost: c.Cost,
			}
		},
		apply: func(f planCostForm, c *billing.PlanCost) error {
			unit, err := billing.ParseRecurrenceUnit(f.RecurrenceUnit)
			if err != nil {
				return err
			}
			c.Slug, c.RecurrencePeriod, c.RecurrenceUnit = nonEmpty(f.Slug), f.RecurrencePeriod, unit
			c.CurrencyID, c.Cost = f.Currency, f.Cost
			return c.Validate()
		},
		columns: map[string]column[billing.PlanCost]{
			"slug":              func(c *billing.PlanCost) interface{} { return c.Slug },
			"recurrence_period": func(c *billing.PlanCost) interface{} { return c.RecurrencePeriod },
			"recurrence_unit":   func(c *billing.PlanCost) interface{} { return c.RecurrenceUnit },
			"currency":          func(c *billing.PlanCost) interface{} { return c.CurrencyID },
			"cost":              func(c *billing.PlanCost) interface{} { return c.Cost },
			"active":            func(c *billing.PlanCost) interface{} { return c.Active },
		},
	}
}

// User subscriptions

type subscriptionForm struct {
	User             *int64     `json:"user"`
	Subscription     *uuid.UUID `json:"subscription"`
	DateBillingStart *time.Time `json:"date_billing_start"`
	DateBillingEnd   *time.Time `json:"date_billing_end"`
	DateBillingLast  *time.Time `json:"date_billing_last"`
	DateBillingNext  *time.Time `json:"date_billing_next"`
	Active           bool       `json:"active"`
	Cancelled        bool       `json:"cancelled"`
}

func userSubscriptionAdmin() ModelAdmin {
	return ModelAdmin{
		Name:              "usersubscription",
		VerboseName:       "user subscription",
		VerboseNamePlural: "user subscriptions",
		Fields: []string{
			"user", "subscription", "date_billing_start", "date_billing_end",
			"date_billing_last", "date_billing_next", "active", "cancelled",
		},
		ListDisplay: []string{
			"user", "subscription", "date_billing_last", "date_billing_next", "active", "cancelled",
		},
		ListFilter: []string{"active", "cancelled", "renewal_status", "user"},
		Ordering:   []string{"user", "date_billing_start"},
	}
}

func subscriptionModel(store storage.Store) Model {
	return &binding[billing.UserSubscription, subscriptionForm, uuid.UUID]{
		parseID: parseUUID,
		idOf:    func(s *billing.UserSubscription) string { return s.ID.String() },
		list:    store.ListSubscriptions,
		get:     store.GetSubscription,
		create:  store.CreateSubscription,
		update:  store.UpdateSubscription,
		remove:  store.DeleteSubscription,
		blank: func() billing.UserSubscription {
			return billing.UserSubscription{ID: uuid.New(), Active: true, RenewalStatus: billing.RenewalRunning}
		},
		toForm: func(s *billing.UserSubscription) subscriptionForm {
			return subscriptionForm{
				User: s.UserID, Subscription: s.PlanCostID,
				DateBillingStart: s.DateBillingStart, DateBillingEnd: s.DateBillingEnd,
				DateBillingLast: s.DateBillingLast, DateBillingNext: s.DateBillingNext,
				Active: s.Active, Cancelled: s.Cancelled,
			}
		},
		apply: func(f subscriptionForm, s *billing.UserSubscription) error {
			s.UserID, s.PlanCostID = f.User, f.Subscription
			s.DateBillingStart, s.DateBillingEnd = f.DateBillingStart, f.DateBillingEnd
			s.DateBillingLast, s.DateBillingNext = f.DateBillingLast, f.DateBillingNext
			s.Active, s.Cancelled = f.Active, f.Cancelled
			return nil
		},
		columns: map[string]column[billing.UserSubscription]{
			"user":               func(s *billing.UserSubscription) interface{} { return s.UserID },
			"subscription":       func(s *billing.UserSubscription) interface{} { return uuidOrNil(s.PlanCostID) },
			"date_billing_start": func(s *billing.UserSubscription) interface{} { return s.DateBillingStart },
			"date_billing_end":   func(s *billing.UserSubscription) interface{} { return s.DateBillingEnd },
			"date_billing_last":  func(s *billing.UserSubscription) interface{} { return s.DateBillingLast },
			"date_billing_next":  func(s *billing.UserSubscription) interface{} { return s.DateBillingNext },
			"active":             func(s *billing.UserSubscription) interface{} { return s.Active },
			"cancelled":          func(s *billing.UserSubscription) interface{} { return s.Cancelled },
		},
	}
}

// Subscription transactions

type transactionForm struct {
	User            *int64              `json:"user"`
	Subscription    *uuid.UUID          `json:"subscription"`
	DateTransaction time.Time           `json:"date_transaction"`
	Amount          decimal.NullDecimal `json:"amount"`
	TransactionType string              `json:"transaction_type"`
}

func transactionAdmin() ModelAdmin {
	return ModelAdmin{
		Name:              "subscriptiontransaction",
		VerboseName:       "subscription transaction",
		VerboseNamePlural: "subscription transactions",
		Fields:            []string{"user", "subscription", "date_transaction", "amount", "transaction_type"},
		ListFilter:        []string{"transaction_type", "user"},
	}
}

func transactionModel(store storage.Store) Model {
	return &binding[billing.SubscriptionTransaction, transactionForm, uuid.UUID]{
		parseID: parseUUID,
		idOf:    func(t *billing.SubscriptionTransaction) string { return t.ID.String() },
		list:    store.ListTransactions,
		get:     store.GetTransaction,
		create:  store.CreateTransaction,
		update:  store.UpdateTransaction,
		remove:  store.DeleteTransaction,
		blank: func() billing.SubscriptionTransaction {
			return billing.SubscriptionTransaction{
				ID:              uuid.New(),
				DateTransaction: time.Now().UTC(),
				TransactionType: billing.TransactionPayment,
			}
		},
		toForm: func(t *billing.SubscriptionTransaction) transactionForm {
			return transactionForm{
				User: t.UserID, Subscription: t.PlanCostID, DateTransaction: t.DateTransaction,
				Amount: t.Amount, TransactionType: string(t.TransactionType),
			}
		},
		apply: func(f transactionForm, t *billing.SubscriptionTransaction) error {
			txnType := billing.TransactionType(f.TransactionType)
			if !txnType.Valid() {
				return fmt.Errorf("invalid transaction_type %q", f.TransactionType)
			}
			t.UserID, t.PlanCostID = f.User, f.Subscription
			t.DateTransaction, t.Amount, t.TransactionType = f.DateTransaction, f.Amount, txnType
			return nil
		},
		columns: map[string]column[billing.SubscriptionTransaction]{
			"user":             func(t *billing.SubscriptionTransaction) interface{} { return t.UserID },
			"subscription":     func(t *billing.SubscriptionTransaction) interface{} { return uuidOrNil(t.PlanCostID) },
			"date_transaction": func(t *billing.SubscriptionTransaction) interface{} { return t.DateTransaction },
			"amount":           func(t *billing.SubscriptionTransaction) interface{} { return t.Amount },
			"transaction_type": func(t *billing.SubscriptionTransaction) interface{} { return t.TransactionType },
		},
	}
}

// Payment currencies

type currencyForm struct {
	Locale          string                `json:"locale"`
	CurrencySymbol  string                `json:"currency_symbol"`
	IntCurrSymbol   string                `json:"int_curr_symbol"`
	PCsPrecedes     bool                  `json:"p_cs_precedes"`
	NCsPrecedes     bool                  `json:"n_cs_precedes"`
	PSepBySpace     bool                  `json:"p_sep_by_space"`
	NSepBySpace     bool                  `json:"n_sep_by_space"`
	MonDecimalPoint string                `json:"mon_decimal_point"`
	MonThousandsSep string                `json:"mon_thousands_sep"`
	MonGrouping     uint16                `json:"mon_grouping"`
	FracDigits      uint16                `json:"frac_digits"`
	IntFracDigits   uint16                `json:"int_frac_digits"`
	PositiveSign    string                `json:"positive_sign"`
	NegativeSign    string                `json:"negative_sign"`
	PSignPosn       currency.SignPosition `json:"p_sign_posn"`
	NSignPosn       currency.SignPosition `json:"n_sign_posn"`
}

var currencyFields = []string{
	"locale", "currency_symbol", "int_curr_symbol", "p_cs_precedes", "n_cs_precedes",
	"p_sep_by_space", "n_sep_by_space", "mon_decimal_point", "mon_thousands_sep", "mon_grouping",
	"frac_digits", "int_frac_digits", "positive_sign", "negative_sign", "p_sign_posn", "n_sign_posn",
}

func currencyAdmin() ModelAdmin {
	return ModelAdmin{
		Name:              "paymentcurrency",
		VerboseName:       "payment currency",
		VerboseNamePlural: "payment currencies",
		Fields:            currencyFields,
	}
}

func currencyModel(store storage.Store) Model {
	return &binding[currency.PaymentCurrency, currencyForm, int64]{
		parseID: parseInt64ID,
		idOf:    func(c *currency.PaymentCurrency) string { return int64String(c.ID) },
		list:    store.ListCurrencies,
		get:     store.GetCurrency,
		create:  store.CreateCurrency,
		update:  store.UpdateCurrency,
		remove:  store.DeleteCurrency,
		blank:   func() currency.PaymentCurrency { return currency.New("", "", "") },
		toForm: func(c *currency.PaymentCurrency) currencyForm {
			return currencyForm{
				Locale: c.Locale, CurrencySymbol: c.CurrencySymbol, IntCurrSymbol: c.IntCurrSymbol,
				PCsPrecedes: c.PCsPrecedes, NCsPrecedes: c.NCsPrecedes,
				PSepBySpace: c.PSepBySpace, NSepBySpace: c.NSepBySpace,
				MonDecimalPoint: c.MonDecimalPoint, MonThousandsSep: c.MonThousandsSep, MonGrouping: c.MonGrouping,
				FracDigits: c.FracDigits, IntFracDigits: c.IntFracDigits,
				PositiveSign: c.PositiveSign, NegativeSign: c.NegativeSign,
				PSignPosn: c.PSignPosn, NSignPosn: c.NSignPosn,
			}
		},
		apply: func(f currencyForm, c *currency.PaymentCurrency) error {
			*c = currency.PaymentCurrency{
				ID: c.ID, Locale: f.Locale, CurrencySymbol: f.CurrencySymbol, IntCurrSymbol: f.IntCurrSymbol,
				PCsPrecedes: f.PCsPrecedes, NCsPrecedes: f.NCsPrecedes,
				PSepBySpace: f.PSepBySpace, NSepBySpace: f.NSepBySpace,
				MonDecimalPoint: f.MonDecimalPoint, MonThousandsSep: f.MonThousandsSep, MonGrouping: f.MonGrouping,
				FracDigits: f.FracDigits, IntFracDigits: f.IntFracDigits,
				PositiveSign: f.PositiveSign, NegativeSign: f.NegativeSign,
				PSignPosn: f.PSignPosn, NSignPosn: f.NSignPosn,
			}
			return c.Validate()
		},
		columns: currencyColumns(),
	}
}

func currencyColumns() map[string]column[currency.PaymentCurrency] {
	type pc = currency.PaymentCurrency
	return map[string]column[pc]{
		"locale":            func(c *pc) interface{} { return c.Locale },
		"currency_symbol":   func(c *pc) interface{} { return c.CurrencySymbol },
		"int_curr_symbol":   func(c *pc) interface{} { return c.IntCurrSymbol },
		"p_cs_precedes":     func(c *pc) interface{} { return c.PCsPrecedes },
		"n_cs_precedes":     func(c *pc) interface{} { return c.NCsPrecedes },
		"p_sep_by_space":    func(c *pc) interface{} { return c.PSepBySpace },
		"n_sep_by_space":    func(c *pc) interface{} { return c.NSepBySpace },
		"mon_decimal_point": func(c *pc) interface{} { return c.MonDecimalPoint },
		"mon_thousands_sep": func(c *pc) interface{} { return c.MonThousandsSep },
		"mon_grouping":      func(c *pc) interface{} { return c.MonGrouping },
		"frac_digits":       func(c *pc) interface{} { return c.FracDigits },
		"int_frac_digits":   func(c *pc) interface{} { return c.IntFracDigits },
		"positive_sign":     func(c *pc) interface{} { return c.PositiveSign },
		"negative_sign":     func(c *pc) interface{} { return c.NegativeSign },
		"p_sign_posn":       func(c *pc) interface{} { return c.PSignPosn },
		"n_sign_posn":       func(c *pc) interface{} { return c.NSignPosn },
	}
}

// Retry schedule and tags

type retryForm struct {
	Iteration   uint16 `json:"iteration"`
	RetryOffset uint16 `json:"retry_offset"`
}

func retryAdmin() ModelAdmin {
	return ModelAdmin{
		Name:              "paymentretry",
		VerboseName:       "payment retry",
		VerboseNamePlural: "payment retries",
		Fields:            []string{"iteration", "retry_offset"},
		ListDisplay:       []string{"iteration", "retry_offset", "pretty_offset"},
		Ordering:          []string{"iteration"},
	}
}

func retryModel(store storage.Store) Model {
	return &binding[billing.PaymentRetry, retryForm, int64]{
		parseID: parseInt64ID,
		idOf:    func(r *billing.PaymentRetry) string { return int64String(r.ID) },
		list:    store.ListRetries,
		get:     store.GetRetry,
		create:  store.CreateRetry,
		update:  store.UpdateRetry,
		remove:  store.DeleteRetry,
		blank:   func() billing.PaymentRetry { return billing.PaymentRetry{} },
		toForm: func(r *billing.PaymentRetry) retryForm {
			return retryForm{Iteration: r.Iteration, RetryOffset: r.RetryOffset}
		},
		apply: func(f retryForm, r *billing.PaymentRetry) error {
			if f.Iteration < 1 {
				return fmt.Errorf("iteration must be at least 1")
			}
			r.Iteration, r.RetryOffset = f.Iteration, f.RetryOffset
			return nil
		},
		columns: map[string]column[billing.PaymentRetry]{
			"iteration":     func(r *billing.PaymentRetry) interface{} { return r.Iteration },
			"retry_offset":  func(r *billing.PaymentRetry) interface{} { return r.RetryOffset },
			"pretty_offset": func(r *billing.PaymentRetry) interface{} { return r.PrettyOffset() },
		},
	}
}

type tagForm struct {
	Tag string `json:"tag"`
}

func tagAdmin() ModelAdmin {
	return ModelAdmin{
		Name:              "plantag",
		VerboseName:       "plan tag",
		VerboseNamePlural: "plan tags",
		Fields:            []string{"tag"},
		ListDisplay:       []string{"tag"},
		SearchFields:      []string{"tag"},
	}
}

func tagModel(store storage.Store) Model {
	return &binding[billing.PlanTag, tagForm, int64]{
		parseID: parseInt64ID,
		idOf:    func(t *billing.PlanTag) string { return int64String(t.ID) },
		list:    store.ListTags,
		get:     store.GetTag,
		create:  store.CreateTag,
		update:  store.UpdateTag,
		remove:  store.DeleteTag,
		blank:   func() billing.PlanTag { return billing.PlanTag{} },
		toForm:  func(t *billing.PlanTag) tagForm { return tagForm{Tag: t.Tag} },
		apply: func(f tagForm, t *billing.PlanTag) error {
			if f.Tag == "" || len([]rune(f.Tag)) > 64 {
				return fmt.Errorf("tag must be 1-64 characters")
			}
			t.Tag = f.Tag
			return nil
		},
		columns: map[string]column[billing.PlanTag]{
			"tag": func(t *billing.PlanTag) interface{} { return t.Tag },
		},
	}
}
