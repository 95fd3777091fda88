// Package validation содержит функции валидации входных данных.
package validation

import "unicode"

// IsValidSIN проверяет корректность социального страхового номера по
// алгоритму Луна. Номер должен состоять ровно из девяти цифр.
func IsValidSIN(sin string) bool {
	if len(sin) != 9 {
		return false
	}

	sum := 0
	double := false

	for i := len(sin) - 1; i >= 0; i-- {
		ch := rune(sin[i])
		if !unicode.IsDigit(ch) {
			return false
		}
		digit := int(ch - '0')
		if double {
			digit *= 2
			if digit > 9 {
				digit -= 9
			}
		}
		sum += digit
		double = !double
	}

	return sum%10 == 0
}
