package domain

import "testing"

func TestDeriveStatus(t *testing.T) {
	cases := []struct {
		name    string
		task    Revision
		history []Revision
		want    Badge
	}{
		{
			name: "foreign holder without status is sent for review",
			task: rev("t1", 2, "", "Owner (O)", "Inspector1"),
			want: Badge{Text: "ส่ง Inspector1", Category: CategorySentForReview},
		},
		{
			name: "closed ignores holder and history",
			task: rev("t1", 4, StatusClosed, "Owner (O)", "Inspector1"),
			history: []Revision{
				rev("h1", 1, StatusReviewed, "Owner (O)", "Owner (O)"),
			},
			want: Badge{Text: StatusClosed, Category: CategoryClosed},
		},
		{
			name: "manual override is shown verbatim",
			task: rev("t1", 2, "รอข้อมูลเพิ่มเติม", "Owner (O)", "Owner (O)"),
			want: Badge{Text: "รอข้อมูลเพิ่มเติม", Category: CategoryManual},
		},
		{
			name: "pending placeholder falls through to holder check",
			task: rev("t1", 2, StatusPendingLabel, "Owner (O)", "Tor (ต่อ)"),
			want: Badge{Text: "ส่ง ต่อ", Category: CategorySentForReview},
		},
		{
			name: "owner held task with earlier review",
			task: rev("t3", 3, "", "Owner (O)", "Owner (O)"),
			history: []Revision{
				rev("t1", 1, StatusReviewed, "Owner (O)", "Tor (ต่อ)"),
				rev("t2", 2, StatusReviewed, "Owner (O)", "Kong (ก้อง)"),
				rev("t3", 3, "", "Owner (O)", "Owner (O)"),
			},
			want: Badge{Text: "ก้อง แล้ว", Category: CategoryReviewed},
		},
		{
			name: "representative itself is skipped in history scan",
			task: rev("t1", 1, "", "Owner (O)", ""),
			history: []Revision{
				{ID: "t1", Order: 1, Status: StatusReviewed, CurrentHolder: "X"},
			},
			want: Badge{Category: CategoryNone},
		},
		{
			name: "owner held task without review has no badge",
			task: rev("t1", 1, "", "Owner (O)", "Owner (O)"),
			want: Badge{Category: CategoryNone},
		},
		{
			name: "sent for review literal uses holder",
			task: func() Revision {
				r := rev("t2", 2, StatusSentForReview, "A (a)", "")
				r.AssignedTo = "Tor (ต่อ)"
				return r
			}(),
			want: Badge{Text: "ส่ง ต่อ", Category: CategorySentForReview},
		},
		{
			name: "reviewed literal names the holder",
			task: rev("t3", 3, StatusReviewed, "A (a)", "A (a)"),
			want: Badge{Text: "a แล้ว", Category: CategoryReviewed},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := DeriveStatus(tc.task, tc.history); got != tc.want {
				t.Fatalf("expected %+v, got %+v", tc.want, got)
			}
		})
	}
}
