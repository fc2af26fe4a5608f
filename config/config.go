package config

type Config struct {
	RedisConfig        RedisConfig
	WhatsAppConfig     WhatsAppConfig
	SqlitePath         string
	HttpPort           int
	WebhookVerifyToken string
	TriggerSecret      string
	ShortenerUrl       string
	SweepLimit         int
	SweepMaxLimit      int
}

type RedisConfig struct {
	Addrs     []string
	Namespace string
}

type WhatsAppConfig struct {
	ApiUrl  string
	PhoneId string
	Token   string
}
