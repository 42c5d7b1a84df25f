package compute

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/proposalcore/pricing-engine/internal/decimalx"
	"github.com/proposalcore/pricing-engine/internal/domain"
)

// taxResult carries the computed retail and use-tax amounts.
type taxResult struct {
	RetailTaxQ7       decimal.Decimal
	JurisdictionTaxes []domain.JurisdictionTax
	UseTaxQ7          *decimal.Decimal
}

// computeTax implements §4.3 step 8. taxableBaseQ7 is the taxable
// partition total after all pre-tax groups have been applied.
func computeTax(cfg domain.TaxConfig, taxableBaseQ7 decimal.Decimal, lineItems []domain.LineItem) taxResult {
	var result taxResult

	if cfg.Mode == domain.TaxModeRetail || cfg.Mode == domain.TaxModeMixed {
		if len(cfg.Jurisdictions) == 0 {
			result.RetailTaxQ7 = decimalx.RoundQ7(taxableBaseQ7.Mul(cfg.RetailRate))
		} else {
			jurisdictions := append([]domain.Jurisdiction(nil), cfg.Jurisdictions...)
			sort.Slice(jurisdictions, func(i, j int) bool {
				if jurisdictions[i].Order != jurisdictions[j].Order {
					return jurisdictions[i].Order < jurisdictions[j].Order
				}
				return jurisdictions[i].Code < jurisdictions[j].Code
			})
			total := decimal.Zero
			for _, j := range jurisdictions {
				amount := decimalx.RoundQ7(taxableBaseQ7.Mul(j.Rate))
				total = decimalx.RoundQ7(total.Add(amount))
				result.JurisdictionTaxes = append(result.JurisdictionTaxes, domain.JurisdictionTax{Code: j.Code, Amount: amount})
			}
			result.RetailTaxQ7 = total
		}
	}

	if cfg.Mode == domain.TaxModeUseTax || cfg.Mode == domain.TaxModeMixed {
		useTaxBase := decimal.Zero
		for _, li := range lineItems {
			if li.UseTaxEligible && !li.VendorTaxCollected {
				useTaxBase = decimalx.RoundQ7(useTaxBase.Add(decimalx.RoundQ7(li.Cost.Mul(li.Quantity))))
			}
		}
		useTax := decimalx.RoundQ7(useTaxBase.Mul(cfg.UseTaxRate))
		result.UseTaxQ7 = &useTax
	}

	return result
}
