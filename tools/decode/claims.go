// Package decode turns loosely typed maps (JWT claims, dynamic JSON) into
// structs, reading field names from `json` tags.
package decode

import (
	"encoding/json"
	"reflect"
	"strconv"
	"strings"

	"PPRealtime/tools/errs"

	"github.com/mitchellh/mapstructure"
)

// Into 解码到 T。数字 ID 落到 string 字段时不带小数点；
// 空格分隔的字符串落到 []string 字段时按空格切分（OAuth scope 写法）。
func Into[T any](m map[string]any) (*T, error) {
	if m == nil {
		return nil, errs.ErrDecode.WrapMsg("decode: map is nil")
	}
	var out T
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		Result:           &out,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			numericString,
			spaceList,
		),
	})
	if err != nil {
		return nil, errs.ErrDecode.WrapMsg("decode: new decoder", "err", err)
	}
	if err := dec.Decode(m); err != nil {
		return nil, errs.ErrDecode.WrapMsg("decode", "type", reflect.TypeOf(out).String(), "err", err)
	}
	return &out, nil
}

func numericString(from, to reflect.Type, data any) (any, error) {
	if to.Kind() != reflect.String {
		return data, nil
	}
	switch v := data.(type) {
	case json.Number:
		return v.String(), nil
	case float64:
		if v == float64(int64(v)) {
			return strconv.FormatInt(int64(v), 10), nil
		}
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	}
	return data, nil
}

func spaceList(from, to reflect.Type, data any) (any, error) {
	if from.Kind() != reflect.String || to.Kind() != reflect.Slice || to.Elem().Kind() != reflect.String {
		return data, nil
	}
	return strings.Fields(reflect.ValueOf(data).String()), nil
}
