// Package projection реализует вычисление путей над снимком
// консолидированных данных. Это граница приватности: наружу отдаются
// только явно объявленные вызывающей стороной листья, никакое поле не
// покидает снимок неявно. Поддерживается только точечный и индексный
// доступ к полям закрытого типа снимка — произвольный язык запросов по
// динамическим объектам намеренно не используется.
package projection

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Project вычисляет объявленные пути над снимком и возвращает только
// запрошенные листья. Ключ результата — имя выходной переменной, значение
// пути — выражение вида offering.studyStartDate или parents[0].income.
// Отсутствующая необязательная связь даёт отсутствующий лист, а не ошибку;
// синтаксически некорректный путь — ошибку.
func Project(snapshot any, declared map[string]string) (map[string]any, error) {
	raw, err := json.Marshal(snapshot)
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}

	var tree any
	if err := json.Unmarshal(raw, &tree); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}

	result := make(map[string]any, len(declared))
	for name, path := range declared {
		segments, err := parsePath(path)
		if err != nil {
			return nil, fmt.Errorf("path %q: %w", path, err)
		}

		if value, ok := resolve(tree, segments); ok {
			result[name] = value
		}
	}

	return result, nil
}

// segment — один шаг пути: имя поля либо индекс массива.
type segment struct {
	field string
	index int
	isIdx bool
}

func parsePath(path string) ([]segment, error) {
	if path == "" {
		return nil, fmt.Errorf("empty path")
	}

	var segments []segment
	for _, part := range strings.Split(path, ".") {
		if part == "" {
			return nil, fmt.Errorf("empty segment")
		}

		for {
			open := strings.IndexByte(part, '[')
			if open == -1 {
				segments = append(segments, segment{field: part})
				break
			}

			if open > 0 {
				segments = append(segments, segment{field: part[:open]})
			}

			closing := strings.IndexByte(part, ']')
			if closing < open {
				return nil, fmt.Errorf("unbalanced index brackets")
			}

			idx, err := strconv.Atoi(part[open+1 : closing])
			if err != nil || idx < 0 {
				return nil, fmt.Errorf("invalid index %q", part[open+1:closing])
			}
			segments = append(segments, segment{index: idx, isIdx: true})

			part = part[closing+1:]
			if part == "" {
				break
			}
			if part[0] != '[' {
				return nil, fmt.Errorf("unexpected characters after index")
			}
		}
	}

	return segments, nil
}

func resolve(node any, segments []segment) (any, bool) {
	for _, seg := range segments {
		switch {
		case seg.isIdx:
			arr, ok := node.([]any)
			if !ok || seg.index >= len(arr) {
				return nil, false
			}
			node = arr[seg.index]

		default:
			obj, ok := node.(map[string]any)
			if !ok {
				return nil, false
			}
			node, ok = obj[seg.field]
			if !ok {
				return nil, false
			}
		}

		if node == nil {
			return nil, false
		}
	}

	return node, true
}
