package email

import (
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"github.com/qs3c/iris_server/config"
)

type Service struct {
	cfg  *config.EmailConfig
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewService(cfg *config.EmailConfig) *Service {
	return &Service{cfg: cfg, send: smtp.SendMail}
}

// SendPlanActivated 套餐开通通知
func (s *Service) SendPlanActivated(to, name, plan string, dailyCredits int, expiresAt time.Time) error {
	subject := "套餐已开通 - Iris"
	body := fmt.Sprintf(`
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
</head>
<body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333;">
    <div style="max-width: 600px; margin: 0 auto; padding: 20px;">
        <h2 style="color: #7c3aed;">%s 套餐已生效</h2>
        <p>%s，您好：</p>
        <p>您的 <strong>%s</strong> 套餐已开通，每日可用 <strong>%d</strong> 积分，今日额度已全部发放。</p>
        <p>套餐有效期至 %s。</p>
        <hr style="border: none; border-top: 1px solid #e5e7eb; margin: 20px 0;">
        <p style="color: #6b7280; font-size: 12px;">此邮件由系统自动发送，请勿回复。</p>
    </div>
</body>
</html>
`, plan, name, plan, dailyCredits, expiresAt.Format("2006-01-02 15:04 MST"))

	return s.sendHTML(to, subject, body)
}

// SendPlanExpired 套餐到期通知
func (s *Service) SendPlanExpired(to, name, plan string, freeCredits int) error {
	subject := "套餐已到期 - Iris"
	body := fmt.Sprintf(`
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
</head>
<body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333;">
    <div style="max-width: 600px; margin: 0 auto; padding: 20px;">
        <h2 style="color: #7c3aed;">套餐已到期</h2>
        <p>%s，您好：</p>
        <p>您的 <strong>%s</strong> 套餐已到期，账户已切换为免费版，每日 %d 积分。</p>
        <p>如需继续使用更多额度，请在应用内重新订阅。</p>
        <hr style="border: none; border-top: 1px solid #e5e7eb; margin: 20px 0;">
        <p style="color: #6b7280; font-size: 12px;">此邮件由系统自动发送，请勿回复。</p>
    </div>
</body>
</html>
`, name, plan, freeCredits)

	return s.sendHTML(to, subject, body)
}

// sendHTML 发送 HTML 邮件
func (s *Service) sendHTML(to, subject, body string) error {
	if s.cfg.SMTPHost == "" {
		return fmt.Errorf("smtp host not configured")
	}

	headers := [][2]string{
		{"From", s.cfg.From},
		{"To", to},
		{"Subject", subject},
		{"MIME-Version", "1.0"},
		{"Content-Type", "text/html; charset=UTF-8"},
	}

	var msg strings.Builder
	for _, h := range headers {
		msg.WriteString(fmt.Sprintf("%s: %s\r\n", h[0], h[1]))
	}
	msg.WriteString("\r\n")
	msg.WriteString(body)

	auth := smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.SMTPHost)
	addr := fmt.Sprintf("%s:%d", s.cfg.SMTPHost, s.cfg.SMTPPort)

	return s.send(addr, auth, s.cfg.From, []string{to}, []byte(msg.String()))
}
