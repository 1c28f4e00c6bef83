package enum

// ── Group A: State machines (CHECK constrained in DB) ──

const (
	OrderStatusOpen      = "OPEN"
	OrderStatusPaid      = "PAID"
	OrderStatusCancelled = "CANCELLED"
)

const (
	TableStatusAvailable = "AVAILABLE"
	TableStatusOccupied  = "OCCUPIED"
	TableStatusReserved  = "RESERVED"
	TableStatusBilling   = "BILLING"
)

const (
	DeliveryStatusNew        = "NEW"
	DeliveryStatusConfirmed  = "CONFIRMED"
	DeliveryStatusPreparing  = "PREPARING"
	DeliveryStatusReady      = "READY"
	DeliveryStatusDispatched = "DISPATCHED"
	DeliveryStatusDelivered  = "DELIVERED"
	DeliveryStatusCancelled  = "CANCELLED"
)

const (
	RiderStatusOffline = "OFFLINE"
	RiderStatusOnline  = "ONLINE"
	RiderStatusBusy    = "BUSY"
)

const (
	PaymentStatusPending   = "PENDING"
	PaymentStatusCompleted = "COMPLETED"
)

// ── Group C: Borderline (CHECK constrained in DB) ──

const (
	StaffRoleOwner   = "OWNER"
	StaffRoleManager = "MANAGER"
	StaffRoleCashier = "CASHIER"
	StaffRoleWaiter  = "WAITER"
	StaffRoleKitchen = "KITCHEN"
)

const (
	OrderTypeDineIn   = "DINE_IN"
	OrderTypeTakeaway = "TAKEAWAY"
	OrderTypeDelivery = "DELIVERY"
)

const (
	OrderSourceStaff    = "STAFF"
	OrderSourceCustomer = "CUSTOMER"
)

// ── Group B: Configurable labels (no DB constraint) ──

const (
	PaymentMethodCash   = "CASH"
	PaymentMethodCard   = "CARD"
	PaymentMethodMobile = "MOBILE"
)

const (
	DiscountTypePercentage = "PERCENTAGE"
	DiscountTypeFixed      = "FIXED_AMOUNT"
)

const (
	DiscountSourceNone   = ""
	DiscountSourcePromo  = "PROMO"
	DiscountSourceManual = "MANUAL"
)
