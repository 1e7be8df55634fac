package constants

// Field names are the canonical keys used across extraction, resolution and
// the assembled result. Store these exact strings in the registry and DB.
const (
	FieldVendor        = "vendor"
	FieldDate          = "date"
	FieldPaymentMethod = "payment_method"
	FieldTotalHT       = "total_ht"
	FieldTVAAmount     = "tva_amount"
	FieldTotalTTC      = "total_ttc"
)

// Fields lists every extractable field, in output order.
var Fields = []string{
	FieldVendor, FieldDate, FieldPaymentMethod,
	FieldTotalHT, FieldTVAAmount, FieldTotalTTC,
}

// MonetaryFields lists the fields carrying decimal amounts, in output order.
var MonetaryFields = []string{FieldTotalHT, FieldTVAAmount, FieldTotalTTC}

// Rule groups partition the registry; each extractor consumes exactly one group.
const (
	GroupHeader   = "header"
	GroupDate     = "date"
	GroupAmount   = "amount"
	GroupTaxTable = "tax_table"
)

// Groups holds every known rule group.
var Groups = []string{GroupHeader, GroupDate, GroupAmount, GroupTaxTable}

// Tax-table rule roles. A registry rule in GroupTaxTable names one of these as
// its field; the tax-table extractor dispatches on the role, so new dialects
// only need new registry entries.
const (
	RoleTaxRowParenthetical = "tax_row_parenthetical"
	RoleTaxTableHeader      = "tax_table_header"
	RoleTaxRowCols          = "tax_row_cols"
	RoleTaxAnchor           = "tax_anchor"
	RoleTaxRateHint         = "tax_rate_hint"
	RoleTaxRateOnly         = "tax_rate_only"
	RoleAmountLine          = "amount_line"
)
