package mail

import (
	"bytes"
	"fmt"
	"html/template"
)

const otpCodeTpl = `<!DOCTYPE html>
<html>
<body style="font-family:sans-serif;background:#f5f5f5;padding:20px">
<div style="max-width:600px;margin:0 auto;background:#fff;border-radius:8px;padding:24px">
  <h2 style="color:#333">登录验证码</h2>
  <p>你好 {{.Name}}，你的验证码是：</p>
  <p style="font-size:32px;letter-spacing:8px;font-weight:700;color:#4f46e5;margin:24px 0">{{.Code}}</p>
  <p style="color:#666">验证码 60 秒内有效，请尽快输入。</p>
  <p style="color:#999;font-size:12px">如果不是您本人操作，请忽略此邮件。</p>
</div>
</body>
</html>`

const abuseAlertTpl = `<!DOCTYPE html>
<html>
<body style="font-family:sans-serif;background:#f5f5f5;padding:20px">
<div style="max-width:600px;margin:0 auto;background:#fff;border-radius:8px;padding:24px">
  <h2 style="color:#b91c1c">登录异常告警</h2>
  <p>来源 <strong>{{.Origin}}</strong> 在 5 分钟内累计 {{.Count}} 次登录失败，疑似遭到暴力破解。</p>
  <p style="color:#999;font-size:12px">10 分钟内不再重复告警。</p>
</div>
</body>
</html>`

var (
	otpTemplate   = template.Must(template.New("otp").Parse(otpCodeTpl))
	abuseTemplate = template.Must(template.New("abuse").Parse(abuseAlertTpl))
)

// RenderOtpCode renders the OTP delivery email body.
func RenderOtpCode(name, code string) (string, error) {
	var buf bytes.Buffer
	err := otpTemplate.Execute(&buf, map[string]string{"Name": name, "Code": code})
	return buf.String(), err
}

// RenderAbuseAlert renders the operator alert body for a throttled origin.
func RenderAbuseAlert(origin string, count int64) (string, error) {
	var buf bytes.Buffer
	err := abuseTemplate.Execute(&buf, map[string]string{
		"Origin": origin,
		"Count":  fmt.Sprintf("%d", count),
	})
	return buf.String(), err
}
