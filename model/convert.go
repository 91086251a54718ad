package model

import (
	"database/sql"
	"fmt"
	"reflect"
	"strconv"
	"time"
)

var (
	scannerType = reflect.TypeOf((*sql.Scanner)(nil)).Elem()
	timeType    = reflect.TypeOf(time.Time{})
)

// TimeScanner scans the assorted time encodings drivers hand back.
type TimeScanner struct {
	Value time.Time
	Valid bool
}

var timeLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.999999999",
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02",
}

// Scan implements sql.Scanner.
func (ts *TimeScanner) Scan(value any) error {
	ts.Value, ts.Valid = time.Time{}, false
	switch v := value.(type) {
	case nil:
		return nil
	case time.Time:
		ts.Value, ts.Valid = v, true
		return nil
	case []byte:
		return ts.parse(string(v))
	case string:
		return ts.parse(v)
	case int64:
		ts.Value, ts.Valid = time.Unix(v, 0), true
		return nil
	}
	return fmt.Errorf("cannot scan %T into time", value)
}

func (ts *TimeScanner) parse(s string) error {
	if s == "" || s == "0000-00-00 00:00:00" || s == "0000-00-00" {
		return nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			ts.Value, ts.Valid = t, true
			return nil
		}
	}
	return fmt.Errorf("cannot parse %q as time", s)
}

// Assign converts a driver value into dst. NULL stores the zero value.
func Assign(dst reflect.Value, src any) error {
	if !dst.CanSet() {
		return fmt.Errorf("cannot set %s", dst.Type())
	}
	if src == nil {
		dst.Set(reflect.Zero(dst.Type()))
		return nil
	}

	sv := reflect.ValueOf(src)
	if sv.Type().AssignableTo(dst.Type()) {
		dst.Set(sv)
		return nil
	}

	if dst.CanAddr() && dst.Addr().Type().Implements(scannerType) {
		return dst.Addr().Interface().(sql.Scanner).Scan(src)
	}

	if dst.Type() == timeType {
		var ts TimeScanner
		if err := ts.Scan(src); err != nil {
			return err
		}
		dst.Set(reflect.ValueOf(ts.Value))
		return nil
	}

	if dst.Kind() == reflect.Ptr {
		elem := reflect.New(dst.Type().Elem())
		if err := Assign(elem.Elem(), src); err != nil {
			return err
		}
		dst.Set(elem)
		return nil
	}

	if b, ok := src.([]byte); ok {
		if dst.Kind() == reflect.Slice && dst.Type().Elem().Kind() == reflect.Uint8 {
			dst.SetBytes(append([]byte(nil), b...))
			return nil
		}
		src, sv = string(b), reflect.ValueOf(string(b))
	}

	switch dst.Kind() {
	case reflect.String:
		switch sv.Kind() {
		case reflect.String:
			dst.SetString(sv.String())
		default:
			dst.SetString(fmt.Sprint(src))
		}
		return nil
	case reflect.Bool:
		switch {
		case sv.Kind() == reflect.String:
			b, err := strconv.ParseBool(sv.String())
			if err != nil {
				return err
			}
			dst.SetBool(b)
		case sv.CanInt():
			dst.SetBool(sv.Int() != 0)
		default:
			return fmt.Errorf("cannot assign %T to bool", src)
		}
		return nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		switch {
		case sv.CanInt():
			dst.SetInt(sv.Int())
		case sv.CanUint():
			dst.SetInt(int64(sv.Uint()))
		case sv.CanFloat():
			dst.SetInt(int64(sv.Float()))
		case sv.Kind() == reflect.String:
			n, err := strconv.ParseInt(sv.String(), 10, 64)
			if err != nil {
				return err
			}
			dst.SetInt(n)
		default:
			return fmt.Errorf("cannot assign %T to %s", src, dst.Type())
		}
		return nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		switch {
		case sv.CanUint():
			dst.SetUint(sv.Uint())
		case sv.CanInt():
			dst.SetUint(uint64(sv.Int()))
		case sv.Kind() == reflect.String:
			n, err := strconv.ParseUint(sv.String(), 10, 64)
			if err != nil {
				return err
			}
			dst.SetUint(n)
		default:
			return fmt.Errorf("cannot assign %T to %s", src, dst.Type())
		}
		return nil
	case reflect.Float32, reflect.Float64:
		switch {
		case sv.CanFloat():
			dst.SetFloat(sv.Float())
		case sv.CanInt():
			dst.SetFloat(float64(sv.Int()))
		case sv.Kind() == reflect.String:
			f, err := strconv.ParseFloat(sv.String(), 64)
			if err != nil {
				return err
			}
			dst.SetFloat(f)
		default:
			return fmt.Errorf("cannot assign %T to %s", src, dst.Type())
		}
		return nil
	}

	if sv.Type().ConvertibleTo(dst.Type()) {
		dst.Set(sv.Convert(dst.Type()))
		return nil
	}
	return fmt.Errorf("cannot assign %T to %s", src, dst.Type())
}
