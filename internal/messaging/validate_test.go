package messaging

import "testing"

func TestValidateEmailRecipient(t *testing.T) {
	testCases := []struct {
		name       string
		email      string
		wantValid  bool
		wantReason string
	}{
		{"合法地址", "user@example.com", true, ""},
		{"带加号", "user+tag@example.com", true, ""},
		{"子域名", "user@mail.example.co.uk", true, ""},
		{"缺少邮箱", "", false, "Recipient has no email address"},
		{"缺少@", "userexample.com", false, "Invalid email format"},
		{"缺少域名后缀", "user@example", false, "Invalid email format"},
		{"包含空格", "user name@example.com", false, "Invalid email format"},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			valid, reason := ValidateEmailRecipient(Recipient{ID: "r1", Email: testCase.email})
			if valid != testCase.wantValid {
				t.Fatalf("valid=%v, want %v", valid, testCase.wantValid)
			}
			if reason != testCase.wantReason {
				t.Fatalf("reason=%q, want %q", reason, testCase.wantReason)
			}
		})
	}
}

func TestNormalizePhoneE164(t *testing.T) {
	testCases := []struct {
		name   string
		phone  string
		want   string
		wantOK bool
	}{
		{"十位北美号码补国家码", "5551234567", "+15551234567", true},
		{"带分隔符的北美号码", "(555) 123-4567", "+15551234567", true},
		{"带前导1的十一位", "15551234567", "+15551234567", true},
		{"已是E164", "+15551234567", "+15551234567", true},
		{"国际号码保留", "+8613912345678", "+8613912345678", true},
		{"太短", "12345", "", false},
		{"带加号但位数不足", "+123456789", "", false},
		{"纯字母", "not-a-phone", "", false},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			got, ok := NormalizePhoneE164(testCase.phone)
			if ok != testCase.wantOK {
				t.Fatalf("ok=%v, want %v", ok, testCase.wantOK)
			}
			if got != testCase.want {
				t.Fatalf("got=%q, want %q", got, testCase.want)
			}
		})
	}
}

func TestValidateSMSRecipient(t *testing.T) {
	if valid, _ := ValidateSMSRecipient(Recipient{Phone: "5551234567"}); !valid {
		t.Fatal("合法手机号应通过校验")
	}

	if valid, reason := ValidateSMSRecipient(Recipient{}); valid || reason != "Recipient has no phone number" {
		t.Fatalf("缺少手机号应被拒: valid=%v reason=%q", valid, reason)
	}

	if valid, reason := ValidateSMSRecipient(Recipient{Phone: "abc"}); valid || reason != "Invalid phone number format" {
		t.Fatalf("非法手机号应被拒: valid=%v reason=%q", valid, reason)
	}
}

func TestValidatePushRecipient(t *testing.T) {
	if valid, _ := ValidatePushRecipient(Recipient{PushToken: "0123456789abcdef0123"}); !valid {
		t.Fatal("合法令牌应通过校验")
	}

	if valid, _ := ValidatePushRecipient(Recipient{}); valid {
		t.Fatal("缺少令牌应被拒")
	}

	if valid, _ := ValidatePushRecipient(Recipient{PushToken: "short"}); valid {
		t.Fatal("过短令牌应被拒")
	}
}
