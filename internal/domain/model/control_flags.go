package model

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ControlFlagsKind — вариант ControlFlags.
type ControlFlagsKind int

const (
	// ControlFlagsAbsent — значение отсутствует (null или пустая строка).
	ControlFlagsAbsent ControlFlagsKind = iota
	// ControlFlagsScalar — скалярное значение, всегда хранится строкой.
	ControlFlagsScalar
	// ControlFlagsStructured — JSON-объект или массив.
	ControlFlagsStructured
)

// ControlFlags — флаги контроля доступа из реестра.
// Справочник присылает их то объектом, то голым скаляром ("201", 201),
// то null. Тип хранит один из трёх вариантов и кодирует его канонично:
// Absent → SQL NULL, Scalar → JSON-строка, Structured → компактный JSON.
type ControlFlags struct {
	kind   ControlFlagsKind
	scalar string
	doc    json.RawMessage
}

// AbsentControlFlags возвращает пустое значение.
func AbsentControlFlags() ControlFlags {
	return ControlFlags{}
}

// ScalarControlFlags возвращает скалярное значение.
// Пустая строка трактуется как отсутствие значения.
func ScalarControlFlags(s string) ControlFlags {
	if s == "" {
		return ControlFlags{}
	}
	return ControlFlags{kind: ControlFlagsScalar, scalar: s}
}

// ParseControlFlags разбирает произвольное JSON-значение.
//
//   - null, "" или пустой ввод → Absent
//   - объект или массив → Structured (компактная запись)
//   - строка → Scalar(строка)
//   - число или bool → Scalar(литерал как есть, "201", "true")
func ParseControlFlags(raw json.RawMessage) (ControlFlags, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return ControlFlags{}, nil
	}

	switch trimmed[0] {
	case '{', '[':
		var buf bytes.Buffer
		if err := json.Compact(&buf, trimmed); err != nil {
			return ControlFlags{}, fmt.Errorf("некорректный JSON control_flags: %w", err)
		}
		return ControlFlags{kind: ControlFlagsStructured, doc: buf.Bytes()}, nil
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return ControlFlags{}, fmt.Errorf("некорректная строка control_flags: %w", err)
		}
		return ScalarControlFlags(s), nil
	default:
		if !json.Valid(trimmed) {
			return ControlFlags{}, fmt.Errorf("некорректный скаляр control_flags: %q", string(trimmed))
		}
		return ScalarControlFlags(string(trimmed)), nil
	}
}

// Kind возвращает вариант значения.
func (c ControlFlags) Kind() ControlFlagsKind {
	return c.kind
}

// IsAbsent сообщает, что значение отсутствует.
func (c ControlFlags) IsAbsent() bool {
	return c.kind == ControlFlagsAbsent
}

// Scalar возвращает скалярное значение, если это вариант Scalar.
func (c ControlFlags) Scalar() (string, bool) {
	return c.scalar, c.kind == ControlFlagsScalar
}

// Document возвращает JSON-документ, если это вариант Structured.
func (c ControlFlags) Document() (json.RawMessage, bool) {
	return c.doc, c.kind == ControlFlagsStructured
}

// Encode возвращает каноничное JSON-представление для записи в БД.
// Для Absent возвращает nil (SQL NULL).
func (c ControlFlags) Encode() []byte {
	switch c.kind {
	case ControlFlagsScalar:
		b, _ := json.Marshal(c.scalar) // строка всегда кодируется без ошибок
		return b
	case ControlFlagsStructured:
		return c.doc
	default:
		return nil
	}
}

// Equal сравнивает два значения по каноничному представлению.
func (c ControlFlags) Equal(other ControlFlags) bool {
	return c.kind == other.kind && bytes.Equal(c.Encode(), other.Encode())
}

// MarshalJSON кодирует значение для API (Absent → null).
func (c ControlFlags) MarshalJSON() ([]byte, error) {
	if c.kind == ControlFlagsAbsent {
		return []byte("null"), nil
	}
	if c.kind == ControlFlagsScalar {
		return json.Marshal(c.scalar)
	}
	return c.doc, nil
}

// UnmarshalJSON разбирает значение через ParseControlFlags.
func (c *ControlFlags) UnmarshalJSON(data []byte) error {
	parsed, err := ParseControlFlags(data)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
