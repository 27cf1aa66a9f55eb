package models

type RefKind string

const (
	RefKindAccount RefKind = "account"
	RefKindVendor  RefKind = "vendor"
	RefKindTaxCode RefKind = "tax_code"
)

// Settings maps source ledger roles onto target ledger ids for one connected account pair.
type Settings struct {
	ClearingAccountID string `json:"stripeClearingAccountId" db:"stripe_clearing_account_id"`
	PayoutAccountID   string `json:"stripePayoutAccountId" db:"stripe_payout_account_id"`
	VendorID          string `json:"stripeVendorId" db:"stripe_vendor_id"`
	FeeAccountID      string `json:"stripeFeeAccountId" db:"stripe_fee_account_id"`
	IncomeAccountID   string `json:"defaultIncomeAccountId" db:"default_income_account_id"`
	DefaultTaxCodeID  string `json:"defaultTaxCodeId" db:"default_tax_code_id"`
	ExemptTaxCodeID   string `json:"exemptTaxCodeId" db:"exempt_tax_code_id"`
}

type SettingsField struct {
	Name  string
	Value string
	Kind  RefKind
}

func (s Settings) Fields() []SettingsField {
	return []SettingsField{
		{Name: "stripe_clearing_account_id", Value: s.ClearingAccountID, Kind: RefKindAccount},
		{Name: "stripe_payout_account_id", Value: s.PayoutAccountID, Kind: RefKindAccount},
		{Name: "stripe_vendor_id", Value: s.VendorID, Kind: RefKindVendor},
		{Name: "stripe_fee_account_id", Value: s.FeeAccountID, Kind: RefKindAccount},
		{Name: "default_income_account_id", Value: s.IncomeAccountID, Kind: RefKindAccount},
		{Name: "default_tax_code_id", Value: s.DefaultTaxCodeID, Kind: RefKindTaxCode},
		{Name: "exempt_tax_code_id", Value: s.ExemptTaxCodeID, Kind: RefKindTaxCode},
	}
}

func (s Settings) TaxCodeFor(exempt bool) string {
	if exempt {
		return s.ExemptTaxCodeID
	}
	return s.DefaultTaxCodeID
}

// ConnectionKey identifies the Stripe account and QuickBooks company a Settings row belongs to.
type ConnectionKey struct {
	StripeAccountID string
	RealmID         string
}
