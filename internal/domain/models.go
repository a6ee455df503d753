package domain

// Money amounts are integer rupiah everywhere below.

type Category struct {
	ID        string `db:"id" json:"id"`
	Name      string `db:"name" json:"name"`
	Icon      string `db:"icon" json:"icon,omitempty"`
	CreatedAt string `db:"created_at" json:"created_at"`
}

type Product struct {
	ID          string `db:"id" json:"id"`
	Name        string `db:"name" json:"name"`
	Description string `db:"description" json:"description"`
	Price       int64  `db:"price" json:"price"`
	Stock       int    `db:"stock" json:"stock"`
	Category    string `db:"category" json:"category"`
	ImageURL    string `db:"image_url" json:"image_url"`
	SellerID    string `db:"seller_id" json:"seller_id"`
	SellerName  string `db:"seller_name" json:"seller_name,omitempty"`
	Active      bool   `db:"is_active" json:"is_active"`
	CreatedAt   string `db:"created_at" json:"created_at"`
	UpdatedAt   string `db:"updated_at" json:"updated_at"`
}

// Purchasable reports whether the kiosk may offer the product.
func (p Product) Purchasable() bool { return p.Active && p.Stock > 0 }

type TransactionStatus string

const (
	TxPending   TransactionStatus = "pending"
	TxVerified  TransactionStatus = "verified"
	TxFailed    TransactionStatus = "failed"
	TxCancelled TransactionStatus = "cancelled"
)

var txNext = map[TransactionStatus]map[TransactionStatus]bool{
	TxPending:   {TxVerified: true, TxFailed: true, TxCancelled: true},
	TxVerified:  {TxCancelled: true},
	TxFailed:    {},
	TxCancelled: {},
}

func (s TransactionStatus) CanTransition(to TransactionStatus) bool { return txNext[s][to] }

func (s TransactionStatus) Valid() bool {
	_, ok := txNext[s]
	return ok
}

// TransactionItem is a line snapshot taken at purchase time.
type TransactionItem struct {
	TransactionID string `db:"transaction_id" json:"-"`
	ProductID     string `db:"product_id" json:"product_id"`
	ProductName   string `db:"product_name" json:"product_name"`
	Quantity      int    `db:"quantity" json:"quantity"`
	Price         int64  `db:"price" json:"price"`
	Subtotal      int64  `db:"subtotal" json:"subtotal"`
}

type Transaction struct {
	ID                   string            `db:"id" json:"id"`
	OrderRef             string            `db:"order_ref" json:"order_ref"`
	CustomerName         string            `db:"customer_name" json:"customer_name"`
	Items                []TransactionItem `db:"-" json:"items"`
	TotalAmount          int64             `db:"total_amount" json:"total_amount"`
	Status               TransactionStatus `db:"status" json:"status"`
	PaymentProofURL      string            `db:"payment_proof_url" json:"payment_proof_url,omitempty"`
	VerificationNotes    string            `db:"verification_notes" json:"verification_notes,omitempty"`
	VerificationAttempts int               `db:"verification_attempts" json:"verification_attempts"`
	SellerID             string            `db:"seller_id" json:"seller_id"`
	CreatedAt            string            `db:"created_at" json:"created_at"`
	UpdatedAt            string            `db:"updated_at" json:"updated_at"`
}

type WithdrawalStatus string

const (
	WdPending   WithdrawalStatus = "pending"
	WdApproved  WithdrawalStatus = "approved"
	WdRejected  WithdrawalStatus = "rejected"
	WdCompleted WithdrawalStatus = "completed"
)

var wdNext = map[WithdrawalStatus]map[WithdrawalStatus]bool{
	WdPending:   {WdApproved: true, WdCompleted: true, WdRejected: true},
	WdApproved:  {WdCompleted: true, WdRejected: true},
	WdRejected:  {},
	WdCompleted: {},
}

func (s WithdrawalStatus) CanTransition(to WithdrawalStatus) bool { return wdNext[s][to] }

type Withdrawal struct {
	ID               string           `db:"id" json:"id"`
	SellerID         string           `db:"seller_id" json:"seller_id"`
	SellerName       string           `db:"seller_name" json:"seller_name,omitempty"`
	Amount           int64            `db:"amount" json:"amount"`
	FeeAmount        int64            `db:"fee_amount" json:"fee_amount"`
	NetAmount        int64            `db:"net_amount" json:"net_amount"`
	Status           WithdrawalStatus `db:"status" json:"status"`
	BankName         string           `db:"bank_name" json:"bank_name"`
	AccountNumber    string           `db:"account_number" json:"account_number"`
	AccountName      string           `db:"account_name" json:"account_name"`
	TransferProofURL string           `db:"transfer_proof_url" json:"transfer_proof_url,omitempty"`
	AdminNotes       string           `db:"admin_notes" json:"admin_notes,omitempty"`
	RequestedAt      string           `db:"requested_at" json:"requested_at"`
	ProcessedAt      string           `db:"processed_at" json:"processed_at,omitempty"`
	CreatedAt        string           `db:"created_at" json:"created_at"`
	UpdatedAt        string           `db:"updated_at" json:"updated_at"`
}

// WithdrawalPatch carries the admin-editable fields of a withdrawal.
type WithdrawalPatch struct {
	Status           WithdrawalStatus
	TransferProofURL string
	AdminNotes       string
	ProcessedAt      string
}

type FailedValidation struct {
	ID              string `db:"id" json:"id"`
	CustomerName    string `db:"customer_name" json:"customer_name"`
	AttemptedAmount int64  `db:"attempted_amount" json:"attempted_amount"`
	FailureReason   string `db:"failure_reason" json:"failure_reason"`
	ImageURL        string `db:"image_url" json:"image_url,omitempty"`
	CreatedAt       string `db:"created_at" json:"created_at"`
}

type QRISConfig struct {
	ID           string `db:"id" json:"id"`
	ImageURL     string `db:"image_url" json:"image_url"`
	MerchantName string `db:"merchant_name" json:"merchant_name"`
	Active       bool   `db:"is_active" json:"is_active"`
	UpdatedAt    string `db:"updated_at" json:"updated_at"`
	UpdatedBy    string `db:"updated_by" json:"updated_by,omitempty"`
}
