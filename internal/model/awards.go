package model

// awardCategoryByCode — закрытый перечень кодов выплат. Отчётность и
// расчёт переплат зависят от точного членства кода в категории, поэтому
// неизвестные коды не допускаются.
var awardCategoryByCode = map[string]AwardCategory{
	"CSLF": AwardCategoryCanadaLoan,
	"CSPT": AwardCategoryCanadaLoan,
	"CSGP": AwardCategoryCanadaGrant,
	"CSGF": AwardCategoryCanadaGrant,
	"CSGD": AwardCategoryCanadaGrant,
	"CSGT": AwardCategoryCanadaGrant,
	"BCSL": AwardCategoryBCLoan,
	"BCAG": AwardCategoryBCGrant,
	"SBSD": AwardCategoryBCGrant,
	"BCSG": AwardCategoryBCTotalGrant,
}

// AwardCategoryForCode возвращает категорию выплаты для известного кода.
func AwardCategoryForCode(code string) (AwardCategory, bool) {
	c, ok := awardCategoryByCode[code]
	return c, ok
}
