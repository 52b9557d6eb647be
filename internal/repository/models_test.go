package repository

import "testing"

func boolPtr(b bool) *bool { return &b }

func TestFlagUpdateApply(t *testing.T) {
	tests := []struct {
		name       string
		flags      Flags
		update     FlagUpdate
		want       Flags
		wantUnseen int64
	}{
		{
			name:       "mark seen",
			flags:      Flags{},
			update:     FlagUpdate{Seen: boolPtr(true)},
			want:       Flags{Seen: true},
			wantUnseen: -1,
		},
		{
			name:       "mark unseen",
			flags:      Flags{Seen: true},
			update:     FlagUpdate{Seen: boolPtr(false)},
			want:       Flags{},
			wantUnseen: 1,
		},
		{
			name:       "seen unchanged",
			flags:      Flags{Seen: true},
			update:     FlagUpdate{Seen: boolPtr(true), Starred: boolPtr(true)},
			want:       Flags{Seen: true, Starred: true},
			wantUnseen: 0,
		},
		{
			name:       "nil fields untouched",
			flags:      Flags{Seen: true, Starred: true, Draft: true},
			update:     FlagUpdate{Answered: boolPtr(true)},
			want:       Flags{Seen: true, Starred: true, Answered: true, Draft: true},
			wantUnseen: 0,
		},
		{
			name:       "empty update is a no-op",
			flags:      Flags{Seen: true},
			update:     FlagUpdate{},
			want:       Flags{Seen: true},
			wantUnseen: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, unseen := tt.update.Apply(tt.flags)
			if got != tt.want {
				t.Errorf("Apply() = %+v, want %+v", got, tt.want)
			}
			if unseen != tt.wantUnseen {
				t.Errorf("Apply() unseen delta = %d, want %d", unseen, tt.wantUnseen)
			}
		})
	}
}

func TestMessageDelta(t *testing.T) {
	unread := Message{SizeBytes: 1024}
	if d := unread.Delta(); d.Messages != 1 || d.Unseen != 1 || d.SizeBytes != 1024 {
		t.Errorf("unread delta = %+v", d)
	}

	read := Message{SizeBytes: 2048, Flags: Flags{Seen: true}}
	if d := read.Delta(); d.Messages != 1 || d.Unseen != 0 || d.SizeBytes != 2048 {
		t.Errorf("read delta = %+v", d)
	}
}

func TestMailboxIsSpecial(t *testing.T) {
	role := SpecialInbox
	if !(&Mailbox{SpecialUse: &role}).IsSpecial() {
		t.Error("mailbox with role should be special")
	}
	if (&Mailbox{}).IsSpecial() {
		t.Error("mailbox without role should not be special")
	}
	empty := ""
	if (&Mailbox{SpecialUse: &empty}).IsSpecial() {
		t.Error("mailbox with empty role should not be special")
	}
}
