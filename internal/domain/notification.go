package domain

// Notification is a fire-and-forget message to a buyer, seller or the admin
// channel. Delivery is best-effort; failure to notify never fails an order.
type Notification struct {
	Title      string `json:"title"`
	Message    string `json:"message"`
	CreatorID  string `json:"creator_id"`
	ReceiverID string `json:"receiver_id"`
	Link       string `json:"link,omitempty"`
}

// AdminChannel is the receiver id for operator-facing notifications,
// including materialization-failure reconciliation records.
const AdminChannel = "admin"
