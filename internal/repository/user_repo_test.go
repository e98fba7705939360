package repository

import (
	"testing"

	"schoolhub/internal/models"
)

func TestUserCreateAndGet(t *testing.T) {
	repo := NewUserRepository(newTestDB(t))

	created := createTestUser(t, repo, "parent@example.com", models.RoleParent)
	if created.ID == "" {
		t.Fatal("expected Create to assign an id")
	}

	byID, err := repo.GetByID(created.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if byID == nil || byID.Email != "parent@example.com" {
		t.Fatalf("GetByID returned %+v", byID)
	}

	byEmail, err := repo.GetByEmail("parent@example.com")
	if err != nil {
		t.Fatalf("GetByEmail failed: %v", err)
	}
	if byEmail == nil || byEmail.ID != created.ID {
		t.Fatalf("GetByEmail returned %+v", byEmail)
	}
}

func TestUserGetMissingReturnsNil(t *testing.T) {
	repo := NewUserRepository(newTestDB(t))

	user, err := repo.GetByID("does-not-exist")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if user != nil {
		t.Errorf("expected nil for missing user, got %+v", user)
	}

	user, err = repo.GetByEmail("nobody@example.com")
	if err != nil {
		t.Fatalf("GetByEmail failed: %v", err)
	}
	if user != nil {
		t.Errorf("expected nil for missing email, got %+v", user)
	}
}

func TestUserFailedLoginCounting(t *testing.T) {
	repo := NewUserRepository(newTestDB(t))
	user := createTestUser(t, repo, "parent@example.com", models.RoleParent)

	for want := 1; want <= 3; want++ {
		attempts, err := repo.IncrementFailedLogins(user.ID)
		if err != nil {
			t.Fatalf("IncrementFailedLogins failed: %v", err)
		}
		if attempts != want {
			t.Errorf("attempt %d: got %d", want, attempts)
		}
	}

	if err := repo.ResetFailedLogins(user.ID); err != nil {
		t.Fatalf("ResetFailedLogins failed: %v", err)
	}

	reloaded, err := repo.GetByID(user.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if reloaded.FailedLoginAttempts != 0 {
		t.Errorf("expected attempts reset to 0, got %d", reloaded.FailedLoginAttempts)
	}
}

func TestUserSetLocked(t *testing.T) {
	repo := NewUserRepository(newTestDB(t))
	user := createTestUser(t, repo, "parent@example.com", models.RoleParent)

	if err := repo.SetLocked(user.ID, true); err != nil {
		t.Fatalf("SetLocked failed: %v", err)
	}
	reloaded, err := repo.GetByID(user.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if !reloaded.AccountLocked {
		t.Error("expected account to be locked")
	}

	if err := repo.SetLocked(user.ID, false); err != nil {
		t.Fatalf("SetLocked failed: %v", err)
	}
	reloaded, err = repo.GetByID(user.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if reloaded.AccountLocked {
		t.Error("expected account to be unlocked")
	}
}

func TestUserOAuthLinkAndLookup(t *testing.T) {
	repo := NewUserRepository(newTestDB(t))
	user := createTestUser(t, repo, "parent@example.com", models.RoleParent)

	if err := repo.LinkOAuthProvider(user.ID, "google", "sub-123"); err != nil {
		t.Fatalf("LinkOAuthProvider failed: %v", err)
	}

	found, err := repo.GetByOAuth("google", "sub-123")
	if err != nil {
		t.Fatalf("GetByOAuth failed: %v", err)
	}
	if found == nil || found.ID != user.ID {
		t.Fatalf("GetByOAuth returned %+v", found)
	}
	if found.OAuthProvider != "google" || found.OAuthSubject != "sub-123" {
		t.Errorf("oauth fields not populated: %+v", found)
	}

	missing, err := repo.GetByOAuth("google", "other-sub")
	if err != nil {
		t.Fatalf("GetByOAuth failed: %v", err)
	}
	if missing != nil {
		t.Errorf("expected nil for unknown subject, got %+v", missing)
	}
}

func TestUserUpdateProfile(t *testing.T) {
	repo := NewUserRepository(newTestDB(t))
	user := createTestUser(t, repo, "parent@example.com", models.RoleParent)

	if err := repo.UpdateProfile(user.ID, "New", "Name"); err != nil {
		t.Fatalf("UpdateProfile failed: %v", err)
	}

	reloaded, err := repo.GetByID(user.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if reloaded.FirstName != "New" || reloaded.LastName != "Name" {
		t.Errorf("profile not updated: %+v", reloaded)
	}
}
