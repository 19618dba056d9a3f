// Package telegram はTelegramログインの署名検証、Bot APIクライアント、
// Webhookコマンドのルーティングを提供する。
package telegram

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
)

// ErrMissingData はアサーションにidまたはhashが含まれないことを表す。
var ErrMissingData = errors.New("telegram assertion is missing id or hash")

// Assertion はTelegramが署名したユーザー情報。永続化はしない。
type Assertion struct {
	ID        int64  `json:"id" validate:"required,gt=0"`
	FirstName string `json:"first_name" validate:"required,max=256"`
	LastName  string `json:"last_name,omitempty" validate:"max=256"`
	Username  string `json:"username,omitempty" validate:"max=64"`
	PhotoURL  string `json:"photo_url,omitempty" validate:"omitempty,url,max=2048"`
	AuthDate  int64  `json:"auth_date" validate:"required,gt=0"`
	Hash      string `json:"hash" validate:"required,len=64,hexadecimal"`

	// raw はクエリで受け取った全パラメータ（hashを除く）。nilの場合は構造体のフィールドから検証文字列を組み立てる。
	raw map[string]string
}

// CheckFields は署名検証に使うフィールドを返す。hashは含まない。
// クエリ由来の場合は受信した全パラメータ、JSON由来の場合は値が空でないフィールドのみを返す。
func (a *Assertion) CheckFields() map[string]string {
	if a.raw != nil {
		fields := make(map[string]string, len(a.raw))
		for k, v := range a.raw {
			fields[k] = v
		}
		return fields
	}

	fields := map[string]string{
		"id":        strconv.FormatInt(a.ID, 10),
		"auth_date": strconv.FormatInt(a.AuthDate, 10),
	}
	optional := map[string]string{
		"first_name": a.FirstName,
		"last_name":  a.LastName,
		"username":   a.Username,
		"photo_url":  a.PhotoURL,
	}
	for k, v := range optional {
		if v != "" {
			fields[k] = v
		}
	}
	return fields
}

// DisplayName は表示用の氏名を返す。
func (a *Assertion) DisplayName() string {
	if a.LastName == "" {
		return a.FirstName
	}
	return a.FirstName + " " + a.LastName
}

// miniAppUser はMini AppのinitDataに含まれるuserパラメータ。
type miniAppUser struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Username  string `json:"username"`
	PhotoURL  string `json:"photo_url"`
}

// ParseQuery はコールバックのクエリパラメータからアサーションを組み立てる。
// Login Widgetの平坦な形式と、userパラメータにJSONを持つMini Appの形式に対応する。
// idまたはhashが欠けている場合はErrMissingDataを返す。
func ParseQuery(values url.Values) (*Assertion, error) {
	hash := values.Get("hash")
	if hash == "" {
		return nil, ErrMissingData
	}

	a := &Assertion{Hash: hash, raw: make(map[string]string, len(values))}
	for k := range values {
		if k == "hash" {
			continue
		}
		a.raw[k] = values.Get(k)
	}

	if rawUser := values.Get("user"); rawUser != "" && values.Get("id") == "" {
		var u miniAppUser
		if err := json.Unmarshal([]byte(rawUser), &u); err != nil {
			return nil, fmt.Errorf("invalid user parameter: %w", err)
		}
		a.ID = u.ID
		a.FirstName = u.FirstName
		a.LastName = u.LastName
		a.Username = u.Username
		a.PhotoURL = u.PhotoURL
	} else {
		a.FirstName = values.Get("first_name")
		a.LastName = values.Get("last_name")
		a.Username = values.Get("username")
		a.PhotoURL = values.Get("photo_url")
		if rawID := values.Get("id"); rawID != "" {
			id, err := strconv.ParseInt(rawID, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid id: %w", err)
			}
			a.ID = id
		}
	}
	if a.ID == 0 {
		return nil, ErrMissingData
	}

	if rawDate := values.Get("auth_date"); rawDate != "" {
		authDate, err := strconv.ParseInt(rawDate, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid auth_date: %w", err)
		}
		a.AuthDate = authDate
	}

	return a, nil
}
