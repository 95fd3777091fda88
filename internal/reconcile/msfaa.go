package reconcile

import "time"

// MaxMSFAAValidDays — окно действия подписанного номера MSFAA в днях,
// считая от даты окончания связанного периода обучения.
const MaxMSFAAValidDays = 730

// MSFAAAction описывает решение менеджера жизненного цикла MSFAA.
type MSFAAAction string

const (
	// MSFAAReuse — переиспользовать существующую живую запись.
	MSFAAReuse MSFAAAction = "reuse"
	// MSFAAAdoptLegacy — завести живую запись с номером из архива
	// предыдущей системы, без цикла повторного запроса подписи.
	MSFAAAdoptLegacy MSFAAAction = "adopt-legacy"
	// MSFAACreateNew — выпустить новый неподписанный номер и
	// инициировать запрос подписи.
	MSFAACreateNew MSFAAAction = "create-new"
)

// SignedMSFAA описывает живую запись MSFAA — подписанную либо ожидающую
// подписи — вместе с датой окончания периода обучения заявления, к
// которому она привязана.
type SignedMSFAA struct {
	ID              int64
	Number          string
	OfferingEndDate *time.Time
}

// LegacyMSFAA описывает запись архива предыдущей системы.
type LegacyMSFAA struct {
	Number  string
	EndDate time.Time
}

// MSFAADecision описывает выбранное действие. ReuseID заполнен для
// MSFAAReuse, Legacy — для MSFAAAdoptLegacy.
type MSFAADecision struct {
	Action  MSFAAAction
	ReuseID int64
	Legacy  LegacyMSFAA
}

// ChooseMSFAA выбирает номер MSFAA для набора выплат в порядке приоритета:
// ожидающая подписи живая запись переиспользуется безусловно; подписанная
// живая запись переиспользуется, если дата окончания её периода обучения
// в пределах окна действия; затем пригодная запись архива; иначе
// выпускается новый номер.
func ChooseMSFAA(pending, signed *SignedMSFAA, legacy *LegacyMSFAA, now time.Time) MSFAADecision {
	if pending != nil {
		return MSFAADecision{Action: MSFAAReuse, ReuseID: pending.ID}
	}

	if signed != nil && signed.OfferingEndDate != nil && WithinMSFAAValidity(*signed.OfferingEndDate, now) {
		return MSFAADecision{Action: MSFAAReuse, ReuseID: signed.ID}
	}

	if legacy != nil && WithinMSFAAValidity(legacy.EndDate, now) {
		return MSFAADecision{Action: MSFAAAdoptLegacy, Legacy: *legacy}
	}

	return MSFAADecision{Action: MSFAACreateNew}
}

// WithinMSFAAValidity сообщает, попадает ли дата окончания обучения в окно
// действия MSFAA относительно текущего момента. Будущие даты окончания
// всегда в окне.
func WithinMSFAAValidity(studyEndDate, now time.Time) bool {
	return now.Sub(studyEndDate) <= MaxMSFAAValidDays*24*time.Hour
}
