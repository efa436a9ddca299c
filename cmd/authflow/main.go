package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"nestmarket/internal/authflow"
	"nestmarket/internal/config"
	"nestmarket/internal/db"
	"nestmarket/internal/email"
	"nestmarket/internal/repository"
	"nestmarket/internal/service"
)

// Cliente de consola para recorrer el flujo de acceso completo contra
// la base real: email, contraseña u OTP y alta opcional de contraseña.
func main() {
	ctx := context.Background()
	reader := bufio.NewReader(os.Stdin)

	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}

	logger := zap.NewExample()
	defer logger.Sync()

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer pool.Close()

	accountRepo := repository.NewPgAccountRepository(pool)
	transactionRepo := repository.NewPgTransactionRepository(pool)
	notificationRepo := repository.NewPgNotificationRepository(pool)

	emailSender := email.NewDisabledSender("email sender not configured")
	if cfg.SMTPHost != "" {
		sender, err := email.NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, cfg.SMTPFrom, cfg.SMTPFromName, cfg.SMTPUseTLS)
		if err != nil {
			logger.Warn("smtp sender init failed", zap.Error(err))
		} else {
			emailSender = sender
		}
	}

	var otpStore service.OTPStore
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		ctxPing, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := redisClient.Ping(ctxPing).Err(); err == nil {
			otpStore = service.NewRedisOTPStore(redisClient)
		}
		cancel()
	}

	ledgerSvc := service.NewLedgerService(logger, accountRepo, transactionRepo, notificationRepo)
	engagementSvc := service.NewEngagementService(logger, accountRepo, ledgerSvc)
	userSvc := service.NewUserService(logger, accountRepo, ledgerSvc, engagementSvc)
	otpSvc := service.NewOTPService(logger, accountRepo, userSvc, engagementSvc, otpStore, nil, emailSender)
	jwtSvc := service.NewJWTService(cfg.JWTSecret, time.Duration(cfg.JWTSessionDays)*24*time.Hour)

	flow := authflow.New(userSvc, otpSvc, jwtSvc)

	fmt.Println("===== Acceso NestMarket =====")
	for flow.State() != authflow.StateDone {
		switch flow.State() {
		case authflow.StateEmail:
			emailStep(ctx, reader, flow)
		case authflow.StatePasswordLogin:
			passwordStep(ctx, reader, flow)
		case authflow.StateOTP:
			otpStep(ctx, reader, flow)
		case authflow.StatePasswordSetup:
			setupStep(ctx, reader, flow)
		}
	}

	account := flow.Account()
	fmt.Printf("\nSesion iniciada como %s (rol %s)\n", account.Email, account.Role)
	if flow.IsNewUser() {
		fmt.Println("Cuenta nueva creada.")
	}
	fmt.Printf("Monedas: %d | Codigo de referido: %s\n", account.Wallet.Coins, account.ReferralCode)
	fmt.Printf("Token: %s\n", flow.Token())
}

func emailStep(ctx context.Context, reader *bufio.Reader, flow *authflow.Flow) {
	fmt.Print("Email: ")
	emailAddr, _ := reader.ReadString('\n')
	emailAddr = strings.TrimSpace(emailAddr)
	if emailAddr == "" {
		return
	}
	state, err := flow.SubmitEmail(ctx, emailAddr)
	if err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	if state == authflow.StateOTP {
		fmt.Println("Te enviamos un codigo de 6 digitos al correo.")
	}
}

func passwordStep(ctx context.Context, reader *bufio.Reader, flow *authflow.Flow) {
	fmt.Print("Contrasena: ")
	password, _ := reader.ReadString('\n')
	password = strings.TrimSpace(password)
	state, err := flow.SubmitPassword(ctx, password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			fmt.Println("Credenciales invalidas, proba de nuevo.")
			return
		}
		fmt.Printf("error: %v\n", err)
		return
	}
	if state == authflow.StateOTP {
		fmt.Println("Esta cuenta no tiene contrasena: te enviamos un codigo al correo.")
	}
}

func otpStep(ctx context.Context, reader *bufio.Reader, flow *authflow.Flow) {
	fmt.Print("Codigo (o 'r' para reenviar): ")
	code, _ := reader.ReadString('\n')
	code = strings.TrimSpace(code)

	if strings.EqualFold(code, "r") {
		if err := flow.Resend(ctx); err != nil {
			if errors.Is(err, authflow.ErrResendCooldown) {
				fmt.Printf("Espera %ds antes de reenviar.\n", int(flow.RemainingCooldown().Seconds()))
				return
			}
			fmt.Printf("error: %v\n", err)
			return
		}
		fmt.Println("Codigo reenviado.")
		return
	}

	if _, err := flow.SubmitCode(ctx, code); err != nil {
		switch {
		case errors.Is(err, service.ErrOTPInvalid):
			fmt.Println("Codigo incorrecto, proba de nuevo.")
		case errors.Is(err, service.ErrOTPExpired):
			fmt.Println("El codigo expiro: pedi uno nuevo con 'r'.")
		case errors.Is(err, service.ErrOTPTooManyAttempts):
			fmt.Println("Demasiados intentos: pedi un codigo nuevo con 'r'.")
		default:
			fmt.Printf("error: %v\n", err)
		}
	}
}

func setupStep(ctx context.Context, reader *bufio.Reader, flow *authflow.Flow) {
	fmt.Print("Queres definir una contrasena para la proxima vez? [S/N]: ")
	choice, _ := reader.ReadString('\n')
	choice = strings.TrimSpace(strings.ToUpper(choice))

	if choice != "S" {
		if _, err := flow.SkipPasswordSetup(); err != nil {
			fmt.Printf("error: %v\n", err)
		}
		return
	}

	fmt.Print("Nueva contrasena (minimo 6 caracteres): ")
	password, _ := reader.ReadString('\n')
	password = strings.TrimSpace(password)
	if _, err := flow.SetupPassword(ctx, password); err != nil {
		if errors.Is(err, service.ErrInvalidPassword) {
			fmt.Println("Contrasena demasiado corta.")
			return
		}
		fmt.Printf("error: %v\n", err)
	}
}
