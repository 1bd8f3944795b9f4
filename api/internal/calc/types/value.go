package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Value: значение переменной или результата: строка либо JSON-число.
// Числа хранятся в исходной записи (без округления через float64).
type Value struct {
	str   string
	num   json.Number
	isNum bool
}

func String(s string) Value        { return Value{str: s} }
func Number(n json.Number) Value   { return Value{num: n, isNum: true} }
func Int(i int64) Value            { return Number(json.Number(strconv.FormatInt(i, 10))) }
func Float(f float64) Value        { return Number(json.Number(strconv.FormatFloat(f, 'g', -1, 64))) }
func (v Value) IsNumber() bool     { return v.isNum }
func (v Value) IsZero() bool       { return !v.isNum && v.str == "" }
func (v Value) Equal(o Value) bool { return v.isNum == o.isNum && v.str == o.str && v.num == o.num }

// String отдаёт текстовую форму: число как есть, строку без кавычек.
func (v Value) String() string {
	if v.isNum {
		return v.num.String()
	}
	return v.str
}

// FromAny приводит декодированное (UseNumber) JSON-значение к Value.
// bool/объекты/массивы превращаются в компактный JSON-текст, null: в пустую строку.
func FromAny(x any) Value {
	switch t := x.(type) {
	case nil:
		return String("")
	case string:
		return String(t)
	case json.Number:
		return Number(t)
	case float64:
		return Float(t)
	case int:
		return Int(int64(t))
	case int64:
		return Int(t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return String(fmt.Sprint(t))
		}
		return String(string(b))
	}
}

func (v Value) MarshalJSON() ([]byte, error) {
	if v.isNum {
		return []byte(v.num.String()), nil
	}
	return json.Marshal(v.str)
}

func (v *Value) UnmarshalJSON(b []byte) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var x any
	if err := dec.Decode(&x); err != nil {
		return err
	}
	*v = FromAny(x)
	return nil
}
