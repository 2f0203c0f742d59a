package observability

import (
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
)

type SentryOptions struct {
	DSN        string
	Env        string
	Release    string
	SampleRate float64 // 0 - все события
}

// InitSentry - пустой DSN выключает отправку; возвращает flush для defer.
func InitSentry(o SentryOptions) (func(), error) {
	if o.DSN == "" {
		return func() {}, nil
	}
	rate := o.SampleRate
	if rate <= 0 || rate > 1 {
		rate = 1
	}
	if err := sentry.Init(sentry.ClientOptions{
		Dsn:         o.DSN,
		Environment: o.Env,
		Release:     o.Release,
		SampleRate:  rate,
		ServerName:  "school-progress",
	}); err != nil {
		return func() {}, err
	}
	return func() { sentry.Flush(2 * time.Second) }, nil
}

func CaptureErr(err error) {
	if err != nil {
		sentry.CaptureException(err)
	}
}

// CaptureErrWith - то же с тегами (job, channel, request_id ...).
func CaptureErrWith(err error, tags map[string]string) {
	if err == nil {
		return
	}
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTags(tags)
		sentry.CaptureException(err)
	})
}

// Recover - только через defer: паника превращается в ошибку, уходит в sentry
// и в onPanic (если задан), горутина завершается штатно.
func Recover(tags map[string]string, onPanic func(error)) {
	r := recover()
	if r == nil {
		return
	}
	err := fmt.Errorf("panic: %v", r)
	CaptureErrWith(err, tags)
	if onPanic != nil {
		onPanic(err)
	}
}
