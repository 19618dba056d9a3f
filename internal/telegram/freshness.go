package telegram

import (
	"time"

	"github.com/hitoshi/rentcam/internal/model"
)

// MaxAuthAge はauth_dateから受け付ける最大経過秒数。
const MaxAuthAge int64 = 86400

// CheckFreshness はauth_dateがnowから24時間を超えて古い場合にAUTH_EXPIREDを返す。
// ちょうど24時間は受け付ける。
func CheckFreshness(authDate int64, now time.Time) error {
	if now.Unix()-authDate > MaxAuthAge {
		return model.NewAuthExpiredError()
	}
	return nil
}
