package redis

import (
	"encoding/base64"
	"errors"
	"fmt"
	"reflect"

	"github.com/vmihailenco/msgpack/v5"
)

// MessageField 是 stream 訊息中保存資料的欄位
const MessageField = "data"

var (
	ErrPointerType = errors.New("pointer type is not allowed")
)

// EncodePayload 以 msgpack 序列化後再做 base64 編碼
func EncodePayload[T any](data T) (string, error) {
	if reflect.TypeOf(data).Kind() == reflect.Ptr {
		return "", ErrPointerType
	}
	bytes, err := msgpack.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("msgpack marshal error: %w", err)
	}
	return base64.StdEncoding.EncodeToString(bytes), nil
}

// EncodeMessage 將資料轉換為 stream 訊息的欄位
func EncodeMessage[T any](data T) (map[string]any, error) {
	encoded, err := EncodePayload(data)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		MessageField: encoded,
	}, nil
}

// DecodeMessage 將 stream 訊息的欄位還原為資料
func DecodeMessage[T any](message map[string]any) (T, error) {
	var result T

	if reflect.TypeOf(result).Kind() == reflect.Ptr {
		return result, ErrPointerType
	}

	if len(message) == 0 {
		return result, nil
	}

	dataStr, ok := message[MessageField].(string)
	if !ok {
		return result, fmt.Errorf("%s field not found or invalid type", MessageField)
	}

	bytes, err := base64.StdEncoding.DecodeString(dataStr)
	if err != nil {
		return result, fmt.Errorf("base64 decode error: %w", err)
	}

	if err := msgpack.Unmarshal(bytes, &result); err != nil {
		return result, fmt.Errorf("msgpack unmarshal error: %w", err)
	}

	return result, nil
}
