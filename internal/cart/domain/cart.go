package domain

import (
	"slices"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stockerhq/stocker/internal/billingcycle"
	catalogdomain "github.com/stockerhq/stocker/internal/catalog/domain"
	outboxdomain "github.com/stockerhq/stocker/internal/outbox/domain"
	"github.com/stockerhq/stocker/pkg/money"
)

// NewSubscriptionCart creates an active cart with the given time-to-live.
func NewSubscriptionCart(id, tenantID snowflake.ID, userID *snowflake.ID, cycle billingcycle.Cycle, currency string, now time.Time, ttl time.Duration) (*SubscriptionCart, error) {
	if !cycle.Valid() {
		return nil, billingcycle.ErrInvalidCycle
	}
	if _, err := money.Zero(currency); err != nil {
		return nil, err
	}
	if ttl <= 0 {
		return nil, ErrInvalidExpiration
	}

	cart := &SubscriptionCart{
		ID:           id,
		TenantID:     tenantID,
		UserID:       userID,
		Status:       CartStatusActive,
		BillingCycle: cycle,
		Currency:     currency,
		ExpiresAt:    now.Add(ttl),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	cart.recordEvent("cart.created", map[string]any{
		"cart_id":   id.String(),
		"tenant_id": tenantID.String(),
	})
	return cart, nil
}

// HasExpired is the pure predicate the scheduler polls.
func (c *SubscriptionCart) HasExpired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}

// SubTotal sums the line totals.
func (c *SubscriptionCart) SubTotal() money.Money {
	total := money.Money{Currency: c.Currency}
	for _, item := range c.Items {
		total.Amount += item.LineTotalAmount
	}
	return total
}

// Total is the subtotal less the applied coupon discount, floored at zero.
func (c *SubscriptionCart) Total() money.Money {
	sub := c.SubTotal()
	if c.DiscountAmount >= sub.Amount {
		return money.Money{Currency: c.Currency}
	}
	return money.Money{Amount: sub.Amount - c.DiscountAmount, Currency: c.Currency}
}

// ensureMutable is the shared guard for every cart mutation: the cart must
// be active and not past its expiry. Guards run before any field writes.
func (c *SubscriptionCart) ensureMutable(now time.Time) error {
	if c.Status != CartStatusActive {
		return ErrCartNotActive
	}
	if c.HasExpired(now) {
		return ErrCartExpired
	}
	return nil
}

// AddModule adds a standalone module line. A module already covered by a
// bundle in the cart is rejected to prevent double-charging.
func (c *SubscriptionCart) AddModule(itemID snowflake.ID, module catalogdomain.ModuleDefinition, quantity int64, now time.Time) error {
	if err := c.ensureMutable(now); err != nil {
		return err
	}
	if quantity < 1 {
		return ErrInvalidQuantity
	}
	if module.Currency != c.Currency {
		return money.ErrCurrencyMismatch
	}
	if c.findItem(CartItemTypeModule, module.Code) != nil {
		return ErrDuplicateItem
	}
	if c.bundleIncluding(module.Code) != nil {
		return ErrModuleIncludedInBundle
	}

	lineTotal, err := module.Price().Multiply(quantity)
	if err != nil {
		return err
	}

	c.Items = append(c.Items, SubscriptionCartItem{
		ID:              itemID,
		CartID:          c.ID,
		ItemType:        CartItemTypeModule,
		ItemID:          module.ID,
		Code:            module.Code,
		Name:            module.Name,
		UnitPriceAmount: module.PriceAmount,
		Currency:        module.Currency,
		Quantity:        quantity,
		LineTotalAmount: lineTotal.Amount,
		TrialDays:       module.TrialDays,
		CreatedAt:       now,
	})
	c.touch(now)
	c.recordEvent("cart.item_added", map[string]any{
		"cart_id":   c.ID.String(),
		"item_type": string(CartItemTypeModule),
		"code":      module.Code,
	})
	return nil
}

// AddBundle adds a bundle line and removes any standalone module lines the
// bundle already covers, so a module is never charged twice.
func (c *SubscriptionCart) AddBundle(itemID snowflake.ID, bundle catalogdomain.Bundle, now time.Time) error {
	if err := c.ensureMutable(now); err != nil {
		return err
	}
	if bundle.Currency != c.Currency {
		return money.ErrCurrencyMismatch
	}
	if c.findItem(CartItemTypeBundle, bundle.Code) != nil {
		return ErrDuplicateItem
	}

	kept := c.Items[:0]
	removed := make([]string, 0)
	for _, item := range c.Items {
		if item.ItemType == CartItemTypeModule && slices.Contains(bundle.IncludedModuleCodes, item.Code) {
			removed = append(removed, item.Code)
			continue
		}
		kept = append(kept, item)
	}
	c.Items = kept

	c.Items = append(c.Items, SubscriptionCartItem{
		ID:                  itemID,
		CartID:              c.ID,
		ItemType:            CartItemTypeBundle,
		ItemID:              bundle.ID,
		Code:                bundle.Code,
		Name:                bundle.Name,
		UnitPriceAmount:     bundle.PriceAmount,
		Currency:            bundle.Currency,
		Quantity:            1,
		LineTotalAmount:     bundle.PriceAmount,
		DiscountPercent:     bundle.DiscountPercent,
		IncludedModuleCodes: bundle.IncludedModuleCodes,
		CreatedAt:           now,
	})
	c.touch(now)
	c.recordEvent("cart.item_added", map[string]any{
		"cart_id":          c.ID.String(),
		"item_type":        string(CartItemTypeBundle),
		"code":             bundle.Code,
		"superseded_codes": removed,
	})
	return nil
}

// AddAddOn adds an add-on line; the module it extends must already be in
// the cart, standalone or via a bundle.
func (c *SubscriptionCart) AddAddOn(itemID snowflake.ID, addOn catalogdomain.AddOn, quantity int64, now time.Time) error {
	if err := c.ensureMutable(now); err != nil {
		return err
	}
	if quantity < 1 {
		return ErrInvalidQuantity
	}
	if addOn.Currency != c.Currency {
		return money.ErrCurrencyMismatch
	}
	if c.findItem(CartItemTypeAddOn, addOn.Code) != nil {
		return ErrDuplicateItem
	}
	if !c.containsModule(addOn.RequiredModuleCode) {
		return ErrRequiredModuleMissing
	}

	lineTotal, err := addOn.Price().Multiply(quantity)
	if err != nil {
		return err
	}

	c.Items = append(c.Items, SubscriptionCartItem{
		ID:                 itemID,
		CartID:             c.ID,
		ItemType:           CartItemTypeAddOn,
		ItemID:             addOn.ID,
		Code:               addOn.Code,
		Name:               addOn.Name,
		UnitPriceAmount:    addOn.PriceAmount,
		Currency:           addOn.Currency,
		Quantity:           quantity,
		LineTotalAmount:    lineTotal.Amount,
		RequiredModuleCode: addOn.RequiredModuleCode,
		CreatedAt:          now,
	})
	c.touch(now)
	c.recordEvent("cart.item_added", map[string]any{
		"cart_id":   c.ID.String(),
		"item_type": string(CartItemTypeAddOn),
		"code":      addOn.Code,
	})
	return nil
}

// AddStoragePlan replaces any existing storage line; a cart carries at most
// one storage plan.
func (c *SubscriptionCart) AddStoragePlan(itemID snowflake.ID, plan catalogdomain.StoragePlan, now time.Time) error {
	if err := c.ensureMutable(now); err != nil {
		return err
	}
	if plan.Currency != c.Currency {
		return money.ErrCurrencyMismatch
	}

	c.removeByType(CartItemTypeStoragePlan)
	c.Items = append(c.Items, SubscriptionCartItem{
		ID:              itemID,
		CartID:          c.ID,
		ItemType:        CartItemTypeStoragePlan,
		ItemID:          plan.ID,
		Code:            plan.Code,
		Name:            plan.Name,
		UnitPriceAmount: plan.PriceAmount,
		Currency:        plan.Currency,
		Quantity:        1,
		LineTotalAmount: plan.PriceAmount,
		StorageGB:       plan.StorageGB,
		CreatedAt:       now,
	})
	c.touch(now)
	c.recordEvent("cart.item_added", map[string]any{
		"cart_id":   c.ID.String(),
		"item_type": string(CartItemTypeStoragePlan),
		"code":      plan.Code,
	})
	return nil
}

// AddUsers replaces any existing user-seat line; the quantity is the seat
// count and must sit inside the tier's bounds.
func (c *SubscriptionCart) AddUsers(itemID snowflake.ID, tier catalogdomain.UserTier, userCount int64, now time.Time) error {
	if err := c.ensureMutable(now); err != nil {
		return err
	}
	if userCount < 1 {
		return ErrInvalidQuantity
	}
	if tier.Currency != c.Currency {
		return money.ErrCurrencyMismatch
	}
	if userCount < int64(tier.MinUsers) || (tier.MaxUsers > 0 && userCount > int64(tier.MaxUsers)) {
		return ErrUserCountOutOfRange
	}

	lineTotal, err := tier.PricePerUser().Multiply(userCount)
	if err != nil {
		return err
	}

	c.removeByType(CartItemTypeUsers)
	c.Items = append(c.Items, SubscriptionCartItem{
		ID:              itemID,
		CartID:          c.ID,
		ItemType:        CartItemTypeUsers,
		ItemID:          tier.ID,
		Code:            tier.Code,
		Name:            tier.Name,
		UnitPriceAmount: tier.PricePerUserAmount,
		Currency:        tier.Currency,
		Quantity:        userCount,
		LineTotalAmount: lineTotal.Amount,
		CreatedAt:       now,
	})
	c.touch(now)
	c.recordEvent("cart.item_added", map[string]any{
		"cart_id":    c.ID.String(),
		"item_type":  string(CartItemTypeUsers),
		"code":       tier.Code,
		"user_count": userCount,
	})
	return nil
}

// RemoveItem drops a line by ID. The coupon discount is intentionally NOT
// re-capped afterwards; see ApplyCoupon.
func (c *SubscriptionCart) RemoveItem(itemID snowflake.ID, now time.Time) error {
	if err := c.ensureMutable(now); err != nil {
		return err
	}

	idx := slices.IndexFunc(c.Items, func(i SubscriptionCartItem) bool { return i.ID == itemID })
	if idx < 0 {
		return ErrItemNotFound
	}

	removed := c.Items[idx]
	c.Items = slices.Delete(c.Items, idx, idx+1)
	c.touch(now)
	c.recordEvent("cart.item_removed", map[string]any{
		"cart_id":   c.ID.String(),
		"item_type": string(removed.ItemType),
		"code":      removed.Code,
	})
	return nil
}

// UpdateItemQuantity changes the quantity of a module, add-on or user-seat
// line. Bundle and storage lines are fixed at quantity 1.
func (c *SubscriptionCart) UpdateItemQuantity(itemID snowflake.ID, quantity int64, now time.Time) error {
	if err := c.ensureMutable(now); err != nil {
		return err
	}
	if quantity < 1 {
		return ErrInvalidQuantity
	}

	idx := slices.IndexFunc(c.Items, func(i SubscriptionCartItem) bool { return i.ID == itemID })
	if idx < 0 {
		return ErrItemNotFound
	}

	item := &c.Items[idx]
	switch item.ItemType {
	case CartItemTypeBundle, CartItemTypeStoragePlan:
		return ErrInvalidQuantity
	}

	lineTotal, err := item.UnitPrice().Multiply(quantity)
	if err != nil {
		return err
	}
	item.Quantity = quantity
	item.LineTotalAmount = lineTotal.Amount
	c.touch(now)
	return nil
}

// ApplyCoupon computes discount = min(subTotal × percent/100, maxDiscount)
// and freezes it. Later item changes do not re-evaluate the discount; that
// follows the original product behavior and is flagged as an open product
// question rather than silently changed here.
func (c *SubscriptionCart) ApplyCoupon(code string, percent float64, maxDiscount money.Money, now time.Time) error {
	if err := c.ensureMutable(now); err != nil {
		return err
	}
	if code == "" || percent <= 0 || percent > 100 {
		return ErrInvalidCoupon
	}
	if maxDiscount.Currency != c.Currency {
		return money.ErrCurrencyMismatch
	}

	fromPercent, err := c.SubTotal().Percent(percent)
	if err != nil {
		return err
	}
	discount, err := fromPercent.Min(maxDiscount)
	if err != nil {
		return err
	}

	c.CouponCode = &code
	c.DiscountPercent = percent
	c.DiscountAmount = discount.Amount
	c.touch(now)
	c.recordEvent("cart.coupon_applied", map[string]any{
		"cart_id":         c.ID.String(),
		"coupon_code":     code,
		"discount_amount": discount.Amount,
	})
	return nil
}

// RemoveCoupon clears the coupon and its frozen discount.
func (c *SubscriptionCart) RemoveCoupon(now time.Time) error {
	if err := c.ensureMutable(now); err != nil {
		return err
	}

	c.CouponCode = nil
	c.DiscountPercent = 0
	c.DiscountAmount = 0
	c.touch(now)
	return nil
}

// ChangeBillingCycle switches the cart's billing cycle.
func (c *SubscriptionCart) ChangeBillingCycle(cycle billingcycle.Cycle, now time.Time) error {
	if err := c.ensureMutable(now); err != nil {
		return err
	}
	if !cycle.Valid() {
		return billingcycle.ErrInvalidCycle
	}

	c.BillingCycle = cycle
	c.touch(now)
	return nil
}

// Clear removes every line. The coupon is kept; its discount stays frozen.
func (c *SubscriptionCart) Clear(now time.Time) error {
	if err := c.ensureMutable(now); err != nil {
		return err
	}

	c.Items = nil
	c.touch(now)
	return nil
}

// StartCheckout moves a non-empty active cart into the checkout handshake.
func (c *SubscriptionCart) StartCheckout(now time.Time) error {
	if err := c.ensureMutable(now); err != nil {
		return err
	}
	if len(c.Items) == 0 {
		return ErrCartEmpty
	}

	c.Status = CartStatusCheckoutPending
	c.touch(now)
	c.recordEvent("cart.checkout_started", map[string]any{
		"cart_id": c.ID.String(),
		"total":   c.Total().Amount,
	})
	return nil
}

// Complete finishes checkout; the cart becomes a terminal record.
func (c *SubscriptionCart) Complete(now time.Time) error {
	if c.Status != CartStatusCheckoutPending {
		return ErrInvalidTransition
	}

	c.Status = CartStatusCompleted
	c.touch(now)
	c.recordEvent("cart.completed", map[string]any{"cart_id": c.ID.String()})
	return nil
}

// FailCheckout returns a pending checkout to the active state so the buyer
// can retry.
func (c *SubscriptionCart) FailCheckout(now time.Time) error {
	if c.Status != CartStatusCheckoutPending {
		return ErrInvalidTransition
	}

	c.Status = CartStatusActive
	c.touch(now)
	return nil
}

// Expire terminates the cart after its expiry window. The scheduler calls
// this based on the HasExpired predicate; the cart never self-transitions.
func (c *SubscriptionCart) Expire(now time.Time) error {
	if c.Status != CartStatusActive && c.Status != CartStatusCheckoutPending {
		return ErrInvalidTransition
	}

	c.Status = CartStatusExpired
	c.touch(now)
	c.recordEvent("cart.expired", map[string]any{"cart_id": c.ID.String()})
	return nil
}

// Abandon terminates an active cart explicitly.
func (c *SubscriptionCart) Abandon(now time.Time) error {
	if c.Status != CartStatusActive {
		return ErrInvalidTransition
	}

	c.Status = CartStatusAbandoned
	c.touch(now)
	c.recordEvent("cart.abandoned", map[string]any{"cart_id": c.ID.String()})
	return nil
}

// ExtendExpiration pushes the expiry window forward.
func (c *SubscriptionCart) ExtendExpiration(until time.Time, now time.Time) error {
	if c.Status != CartStatusActive {
		return ErrCartNotActive
	}
	if !until.After(now) || !until.After(c.ExpiresAt) {
		return ErrInvalidExpiration
	}

	c.ExpiresAt = until
	c.touch(now)
	return nil
}

// DrainEvents returns and clears the events accumulated by mutations. The
// caller persists them in the same transaction as the aggregate.
func (c *SubscriptionCart) DrainEvents() []outboxdomain.Event {
	events := c.pendingEvents
	c.pendingEvents = nil
	return events
}

func (c *SubscriptionCart) findItem(itemType CartItemType, code string) *SubscriptionCartItem {
	for i := range c.Items {
		if c.Items[i].ItemType == itemType && c.Items[i].Code == code {
			return &c.Items[i]
		}
	}
	return nil
}

func (c *SubscriptionCart) bundleIncluding(moduleCode string) *SubscriptionCartItem {
	for i := range c.Items {
		item := &c.Items[i]
		if item.ItemType == CartItemTypeBundle && slices.Contains(item.IncludedModuleCodes, moduleCode) {
			return item
		}
	}
	return nil
}

func (c *SubscriptionCart) containsModule(moduleCode string) bool {
	if moduleCode == "" {
		return true
	}
	if c.findItem(CartItemTypeModule, moduleCode) != nil {
		return true
	}
	return c.bundleIncluding(moduleCode) != nil
}

func (c *SubscriptionCart) removeByType(itemType CartItemType) {
	c.Items = slices.DeleteFunc(c.Items, func(i SubscriptionCartItem) bool {
		return i.ItemType == itemType
	})
}

func (c *SubscriptionCart) touch(now time.Time) {
	c.UpdatedAt = now
}

func (c *SubscriptionCart) recordEvent(eventType string, payload map[string]any) {
	c.pendingEvents = append(c.pendingEvents, outboxdomain.Event{
		Type:    eventType,
		Payload: payload,
	})
}
