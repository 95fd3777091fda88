// Package reconcile содержит чистые расчёты сверки выплат и жизненного
// цикла номеров MSFAA. Функции пакета не обращаются к хранилищу: вся
// необходимая история передаётся на вход, результат применяется
// вызывающей стороной в одной транзакции.
package reconcile

import (
	"sort"
	"time"

	"github.com/avolkhin/studentaid-system/internal/model"
)

// OverawardThresholdCents — порог превышения ранее выплаченного над новой
// валовой суммой займа, строго больше которого создаётся запись о
// переплате. Равенство порогу записи не порождает.
const OverawardThresholdCents = 250_00

// AwardInput описывает одну выплату, запрошенную расчётом.
type AwardInput struct {
	Code        string
	Category    model.AwardCategory
	AmountCents int64
}

// ScheduleInput описывает один запрошенный график выплаты.
type ScheduleInput struct {
	DisbursementDate     time.Time
	NegotiatedExpiryDate time.Time
	Values               []AwardInput
}

// ValuePlan описывает выплату с рассчитанным удержанием ранее выплаченного.
type ValuePlan struct {
	Code                     string
	Category                 model.AwardCategory
	AmountCents              int64
	DisbursedSubtractedCents int64
}

// SchedulePlan описывает график выплаты, готовый к сохранению.
type SchedulePlan struct {
	DisbursementDate     time.Time
	NegotiatedExpiryDate time.Time
	Values               []ValuePlan
}

// OverawardPlan описывает запись о переплате, которую нужно создать.
type OverawardPlan struct {
	Code        string
	AmountCents int64
}

// PlanSchedules сверяет запрошенные графики с ранее эффективно выплаченными
// суммами по кодам (previousDisbursed) и возвращает графики с удержаниями
// и записи о переплатах.
//
// Удержание по коду расходуется как остаток: если код встречается в
// нескольких графиках, ранее выплаченное вычитается по порядку, пока не
// исчерпается. Агрегаты провинциальных грантов сохраняются как есть и не
// участвуют ни в удержаниях, ни в переплатах. Переплата создаётся только
// по займам и только если ранее выплаченное превышает новую валовую сумму
// по коду строго больше порога.
func PlanSchedules(previousDisbursed map[string]int64, schedules []ScheduleInput) ([]SchedulePlan, []OverawardPlan) {
	remaining := make(map[string]int64, len(previousDisbursed))
	for code, amount := range previousDisbursed {
		remaining[code] = amount
	}

	newGross := make(map[string]int64)

	plans := make([]SchedulePlan, 0, len(schedules))
	for _, s := range schedules {
		plan := SchedulePlan{
			DisbursementDate:     s.DisbursementDate,
			NegotiatedExpiryDate: s.NegotiatedExpiryDate,
			Values:               make([]ValuePlan, 0, len(s.Values)),
		}

		for _, v := range s.Values {
			vp := ValuePlan{
				Code:        v.Code,
				Category:    v.Category,
				AmountCents: v.AmountCents,
			}

			if !v.Category.IsTotalGrant() {
				subtract := min64(remaining[v.Code], v.AmountCents)
				if subtract > 0 {
					vp.DisbursedSubtractedCents = subtract
					remaining[v.Code] -= subtract
				}
				newGross[v.Code] += v.AmountCents
			}

			plan.Values = append(plan.Values, vp)
		}

		plans = append(plans, plan)
	}

	return plans, planOverawards(previousDisbursed, newGross)
}

// planOverawards сравнивает ранее выплаченное с новой валовой суммой по
// каждому коду займа. Коды перебираются в отсортированном порядке, чтобы
// результат был детерминированным.
func planOverawards(previousDisbursed, newGross map[string]int64) []OverawardPlan {
	codes := make([]string, 0, len(previousDisbursed))
	for code := range previousDisbursed {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	var overawards []OverawardPlan
	for _, code := range codes {
		category, ok := model.AwardCategoryForCode(code)
		if !ok || !category.IsLoan() {
			continue
		}

		delta := previousDisbursed[code] - newGross[code]
		if delta > OverawardThresholdCents {
			overawards = append(overawards, OverawardPlan{
				Code:        code,
				AmountCents: delta,
			})
		}
	}

	return overawards
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
