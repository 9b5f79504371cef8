package domain

// PaymentOrder is the order the backend creates before checkout. Amount is in the smallest currency unit.
type PaymentOrder struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt,omitempty"`
}

// CheckoutPrefill pre-populates the payer's details in the checkout form.
type CheckoutPrefill struct {
	Name    string `json:"name,omitempty"`
	Email   string `json:"email,omitempty"`
	Contact string `json:"contact,omitempty"`
}

// CheckoutTheme styles the checkout form.
type CheckoutTheme struct {
	Color string `json:"color,omitempty"`
}

// CheckoutOptions is what the payment gateway's checkout is opened with.
type CheckoutOptions struct {
	Key      string          `json:"key"`
	Amount   int64           `json:"amount"`
	Currency string          `json:"currency"`
	OrderID  string          `json:"order_id"`
	Name     string          `json:"name,omitempty"`
	Prefill  CheckoutPrefill `json:"prefill"`
	Theme    CheckoutTheme   `json:"theme"`
}

// PaymentResult is what the gateway hands back on success.
type PaymentResult struct {
	OrderID   string `json:"razorpay_order_id"`
	PaymentID string `json:"razorpay_payment_id"`
	Signature string `json:"razorpay_signature"`
}

// PaymentVerification is the backend's answer to a verify request.
type PaymentVerification struct {
	Verified bool   `json:"success"`
	Message  string `json:"message,omitempty"`
}
