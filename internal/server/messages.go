package server

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/joseph-ayodele/tickets-tracker/internal/common"
)

func str(in *structpb.Struct, name string) string {
	return strings.TrimSpace(in.GetFields()[name].GetStringValue())
}

func flag(in *structpb.Struct, name string) bool {
	return in.GetFields()[name].GetBoolValue()
}

// integer accepts a number or a numeric string.
func integer(in *structpb.Struct, name string) (int64, bool, error) {
	v, ok := in.GetFields()[name]
	if !ok {
		return 0, false, nil
	}
	switch k := v.GetKind().(type) {
	case *structpb.Value_NumberValue:
		return int64(k.NumberValue), true, nil
	case *structpb.Value_StringValue:
		n, err := strconv.ParseInt(strings.TrimSpace(k.StringValue), 10, 64)
		if err != nil {
			return 0, false, common.InvalidArgumentErrorf("%s must be an integer", name)
		}
		return n, true, nil
	case *structpb.Value_NullValue:
		return 0, false, nil
	}
	return 0, false, common.InvalidArgumentErrorf("%s must be an integer", name)
}

func date(in *structpb.Struct, name string) (time.Time, error) {
	s := str(in, name)
	v := common.NewValidator().Field(name, s, common.Required)
	if s != "" {
		v.Field(name, s, common.Date)
	}
	if err := common.ValidateAndReturnError(v); err != nil {
		return time.Time{}, err
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, common.InvalidArgumentErrorf("%s must be YYYY-MM-DD", name)
	}
	return t, nil
}

func id(in *structpb.Struct, name string) (uuid.UUID, error) {
	s := str(in, name)
	v := common.NewValidator().Field(name, s, common.Required)
	if s != "" {
		v.Field(name, s, common.UUID)
	}
	if err := common.ValidateAndReturnError(v); err != nil {
		return uuid.Nil, err
	}
	return uuid.MustParse(s), nil
}

func maxLen(n int) common.ValidationRule {
	return func(field string, value interface{}) *common.ValidationError {
		return common.MaxLength(field, value, n)
	}
}

// toStruct renders v through its JSON form.
func toStruct(v any) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, common.InternalErrorf("encode response: %v", err)
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(b, out); err != nil {
		return nil, common.InternalErrorf("encode response: %v", err)
	}
	return out, nil
}
