package events

import "testing"

func TestParseObjectKey(t *testing.T) {
	tests := []struct {
		name      string
		objectKey string
		wantAppID int64
		wantFile  string
		wantErr   bool
	}{
		{name: "valid", objectKey: "42/diploma.txt", wantAppID: 42, wantFile: "diploma.txt"},
		{name: "valid nested", objectKey: "42/nested/path/claim.txt", wantAppID: 42, wantFile: "nested/path/claim.txt"},
		{name: "non numeric id", objectKey: "abc-123/diploma.txt", wantErr: true},
		{name: "zero id", objectKey: "0/diploma.txt", wantErr: true},
		{name: "invalid no slash", objectKey: "42", wantErr: true},
		{name: "invalid empty", objectKey: "", wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			appID, filename, err := parseObjectKey(tc.objectKey)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if appID != tc.wantAppID {
				t.Fatalf("application id mismatch: got %d want %d", appID, tc.wantAppID)
			}
			if filename != tc.wantFile {
				t.Fatalf("filename mismatch: got %q want %q", filename, tc.wantFile)
			}
		})
	}
}

func TestDecodeObjectKey(t *testing.T) {
	decoded, err := decodeObjectKey("42%2Fclaim%20narrative.txt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if decoded != "42/claim narrative.txt" {
		t.Fatalf("decoded mismatch: got %q", decoded)
	}
}
