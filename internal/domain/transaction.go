package domain

import (
	"fmt"
	"time"
)

// TxType distingue créditos de débitos en el libro de monedas.
type TxType string

const (
	TxCredit TxType = "credit"
	TxDebit  TxType = "debit"
)

// TxReason es el conjunto cerrado de motivos de movimiento.
type TxReason string

const (
	ReasonRegistration      TxReason = "registration"
	ReasonDailyLogin        TxReason = "daily_login"
	ReasonReferral          TxReason = "referral"
	ReasonContactView       TxReason = "contact_view"
	ReasonWhatsappContact   TxReason = "whatsapp_contact"
	ReasonPropertySearch    TxReason = "property_search"
	ReasonPropertyListing   TxReason = "property_listing"
	ReasonPrimeListing      TxReason = "prime_listing"
	ReasonVerificationBadge TxReason = "verification_badge"
	ReasonRejectionPenalty  TxReason = "rejection_penalty"
	ReasonTopup             TxReason = "topup"
)

// featureCosts define el precio en monedas de cada función comprable.
var featureCosts = map[TxReason]int{
	ReasonContactView:       5,
	ReasonWhatsappContact:   10,
	ReasonPropertySearch:    2,
	ReasonPropertyListing:   30,
	ReasonPrimeListing:      50,
	ReasonVerificationBadge: 100,
}

// FeatureCost devuelve el costo de un motivo comprable por el usuario.
func FeatureCost(reason TxReason) (int, bool) {
	cost, ok := featureCosts[reason]
	return cost, ok
}

// Transaction es una entrada inmutable del libro de monedas.
// BalanceAfter siempre es BalanceBefore ± Amount según Type.
type Transaction struct {
	ID            string    `json:"id"`
	UserID        string    `json:"user_id"`
	Type          TxType    `json:"type"`
	Amount        int       `json:"amount"`
	Reason        TxReason  `json:"reason"`
	ReferenceID   string    `json:"reference_id,omitempty"`
	BalanceBefore int       `json:"balance_before"`
	BalanceAfter  int       `json:"balance_after"`
	CreatedAt     time.Time `json:"created_at"`
}

// Notification es el registro legible derivado de cada movimiento.
type Notification struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	IsRead    bool      `json:"is_read"`
	CreatedAt time.Time `json:"created_at"`
}

var reasonTitles = map[TxReason]string{
	ReasonRegistration:      "Welcome bonus",
	ReasonDailyLogin:        "Daily login bonus",
	ReasonReferral:          "Referral bonus",
	ReasonContactView:       "Contact viewed",
	ReasonWhatsappContact:   "WhatsApp contact",
	ReasonPropertySearch:    "Property search",
	ReasonPropertyListing:   "Property listing",
	ReasonPrimeListing:      "Prime listing",
	ReasonVerificationBadge: "Verification badge",
	ReasonRejectionPenalty:  "Listing rejected",
	ReasonTopup:             "Coins top-up",
}

// NewLedgerNotification construye la notificación de un movimiento.
func NewLedgerNotification(id string, tx Transaction) Notification {
	title, ok := reasonTitles[tx.Reason]
	if !ok {
		title = "Coins update"
	}
	verb := "credited to"
	if tx.Type == TxDebit {
		verb = "debited from"
	}
	return Notification{
		ID:        id,
		UserID:    tx.UserID,
		Title:     title,
		Message:   fmt.Sprintf("%d coins %s your wallet. New balance: %d.", tx.Amount, verb, tx.BalanceAfter),
		CreatedAt: tx.CreatedAt,
	}
}
