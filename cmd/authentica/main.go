// Command authentica calls the Authentica API once per invocation.
//
//	authentica balance
//	authentica otp-send <sms|whatsapp|email> <phone|email>
//	authentica otp-verify <phone|email> <otp>
//	authentica face <BASE64_REF_IMAGE> <BASE64_QUERY_IMAGE>
//	authentica voice <BASE64_REF_AUDIO> <BASE64_QUERY_AUDIO>
//	authentica sms <phone> <message> <sender_name>
//
// AUTHENTICA_API_KEY is required, BASE_URL is optional.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"

	"go-authentica/authentica"
	"go-authentica/config"
	"go-authentica/logging"
	"go-authentica/models"
)

const demoUserId = "demo"

const usage = `Usage: authentica [-config path] <command> [args]

Commands:
  balance
  otp-send <sms|whatsapp|email> <phone|email>
  otp-verify <phone|email> <otp>
  face <BASE64_REF_IMAGE> <BASE64_QUERY_IMAGE>
  voice <BASE64_REF_AUDIO> <BASE64_QUERY_AUDIO>
  sms <phone> <message> <sender_name>
`

type apiClient interface {
	Balance(ctx context.Context) (any, error)
	SendOTP(ctx context.Context, request models.SendOTPRequest) error
	VerifyOTP(ctx context.Context, request models.VerifyOTPRequest) (bool, error)
	VerifyByFace(ctx context.Context, request models.FaceVerificationRequest) (map[string]any, error)
	VerifyByVoice(ctx context.Context, request models.VoiceVerificationRequest) (map[string]any, error)
	SendSMS(ctx context.Context, request models.SendSMSRequest) error
}

func main() {
	fs := flag.NewFlagSet("authentica", flag.ExitOnError)
	configPath := fs.String("config", "", "Path for the config.json to use, environment only when empty")
	fs.Usage = func() {
		fmt.Fprint(fs.Output(), usage)
		fs.PrintDefaults()
	}
	_ = fs.Parse(os.Args[1:])

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)

	if err := cfg.ValidateClient(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	client := authentica.NewClient(cfg.Authentica.BaseURL, cfg.Authentica.APIKey)
	code := run(ctx, fs.Args(), client, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run executes one command and returns the process exit code
func run(ctx context.Context, args []string, client apiClient, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return 1
	}

	command, rest := args[0], args[1:]
	slog.Debug("Running command", "command", command)

	var err error
	switch command {
	case "balance":
		err = runBalance(ctx, client, stdout)
	case "otp-send":
		if len(rest) < 2 {
			return usageErr(stderr, "authentica otp-send <sms|whatsapp|email> <phone|email>")
		}
		err = runSendOTP(ctx, client, stdout, rest[0], rest[1])
	case "otp-verify":
		if len(rest) < 2 {
			return usageErr(stderr, "authentica otp-verify <phone|email> <otp>")
		}
		err = runVerifyOTP(ctx, client, stdout, rest[0], rest[1])
	case "face":
		if len(rest) < 2 {
			return usageErr(stderr, "authentica face <BASE64_REF_IMAGE> <BASE64_QUERY_IMAGE>")
		}
		err = runFace(ctx, client, stdout, rest[0], rest[1])
	case "voice":
		if len(rest) < 2 {
			return usageErr(stderr, "authentica voice <BASE64_REF_AUDIO> <BASE64_QUERY_AUDIO>")
		}
		err = runVoice(ctx, client, stdout, rest[0], rest[1])
	case "sms":
		if len(rest) < 3 {
			return usageErr(stderr, "authentica sms <phone> <message> <sender_name>")
		}
		err = runSMS(ctx, client, stdout, rest[0], rest[1], rest[2])
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n%s", command, usage)
		return 1
	}

	if err != nil {
		reportErr(stderr, err)
		return 1
	}
	return 0
}

func runBalance(ctx context.Context, client apiClient, stdout io.Writer) error {
	balance, err := client.Balance(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Balance: %s\n", format(balance))
	return nil
}

func runSendOTP(ctx context.Context, client apiClient, stdout io.Writer, method, recipient string) error {
	request, err := authentica.NewSendOTPRequest(method, recipient)
	if err != nil {
		return err
	}
	if err := client.SendOTP(ctx, request); err != nil {
		return err
	}
	fmt.Fprintln(stdout, `OTP sent: {"success":true}`)
	return nil
}

func runVerifyOTP(ctx context.Context, client apiClient, stdout io.Writer, recipient, otp string) error {
	request, err := authentica.NewVerifyOTPRequest(recipient, otp)
	if err != nil {
		return err
	}
	verified, err := client.VerifyOTP(ctx, request)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Verification result: %t\n", verified)
	return nil
}

func runFace(ctx context.Context, client apiClient, stdout io.Writer, reference, query string) error {
	result, err := client.VerifyByFace(ctx, models.FaceVerificationRequest{
		UserId:              demoUserId,
		RegisteredFaceImage: reference,
		QueryFaceImage:      query,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Face result: %s\n", format(result))
	return nil
}

func runVoice(ctx context.Context, client apiClient, stdout io.Writer, reference, query string) error {
	result, err := client.VerifyByVoice(ctx, models.VoiceVerificationRequest{
		UserId:          demoUserId,
		RegisteredAudio: reference,
		QueryAudio:      query,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Voice result: %s\n", format(result))
	return nil
}

func runSMS(ctx context.Context, client apiClient, stdout io.Writer, phone, message, sender string) error {
	err := client.SendSMS(ctx, models.SendSMSRequest{
		Phone:      phone,
		Message:    message,
		SenderName: sender,
	})
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, "SMS queued")
	return nil
}

func usageErr(stderr io.Writer, line string) int {
	fmt.Fprintf(stderr, "Usage: %s\n", line)
	return 1
}

func reportErr(stderr io.Writer, err error) {
	var apiErr *authentica.APIError
	if errors.As(err, &apiErr) {
		fmt.Fprintf(stderr, "Error: %d %s\n", apiErr.StatusCode, format(apiErr.Body))
		return
	}
	fmt.Fprintf(stderr, "Error: %v\n", err)
}

// format renders values as JSON so maps print deterministically
func format(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}
