package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"campus-portal/internal/auth"
	"campus-portal/internal/policy"
)

type credentialsRequest struct {
	Username string `form:"username" json:"username"`
	Password string `form:"password" json:"password"`
}

type studentSignupRequest struct {
	Username string `form:"username" json:"username"`
	Email    string `form:"email" json:"email"`
	Password string `form:"password" json:"password"`
}

type coordinatorRequest struct {
	Username   string `form:"username" json:"username"`
	Password   string `form:"password" json:"password"`
	Department string `form:"department" json:"department"`
}

type profileRequest struct {
	Email    string `form:"email" json:"email"`
	Password string `form:"password" json:"password"`
}

type passwordRequest struct {
	Password string `form:"password" json:"password"`
}

// -----------------------------
// Sign up, login, logout
// -----------------------------

func (s *Server) RegisterAdmin(c *gin.Context) {
	var body credentialsRequest
	if err := c.ShouldBind(&body); err != nil {
		jsonError(c, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}
	admin, err := s.Identity.RegisterAdmin(c.Request.Context(), body.Username, body.Password)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"message":  "Admin registered successfully.",
		"admin":    admin,
		"redirect": policy.LoginPage(policy.RoleAdmin),
	})
}

func (s *Server) RegisterStudent(c *gin.Context) {
	var body studentSignupRequest
	if err := c.ShouldBind(&body); err != nil {
		jsonError(c, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}
	student, err := s.Identity.RegisterStudent(c.Request.Context(), body.Username, body.Email, body.Password)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"message":  "Registered successfully. Please login.",
		"student":  student,
		"redirect": policy.LoginPage(policy.RoleStudent),
	})
}

// Login returns the login handler for role. A successful login replaces any
// session the browser already holds.
func (s *Server) Login(role policy.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body credentialsRequest
		if err := c.ShouldBind(&body); err != nil {
			jsonError(c, http.StatusBadRequest, "invalid request: "+err.Error())
			return
		}
		ctx := c.Request.Context()
		p, err := s.Identity.Login(ctx, role, body.Username, body.Password)
		if err != nil {
			fail(c, err)
			return
		}

		if old, err := c.Cookie(auth.CookieName); err == nil && old != "" {
			_ = s.Sessions.Revoke(ctx, old)
		}
		token, err := s.Sessions.Issue(ctx, p)
		if err != nil {
			fail(c, err)
			return
		}
		auth.SetCookie(c, token, int(s.Sessions.TTL().Seconds()))
		c.JSON(http.StatusOK, gin.H{
			"message":  "Logged in successfully.",
			"role":     p.Role,
			"id":       p.ID,
			"redirect": p.Landing(),
		})
	}
}

// Logout returns the logout handler for role. It only ends a session held
// by that role.
func (s *Server) Logout(role policy.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		if p := auth.Principal(c); p.Role == role && !p.Anonymous() {
			if token, err := c.Cookie(auth.CookieName); err == nil {
				if err := s.Sessions.Revoke(c.Request.Context(), token); err != nil {
					fail(c, err)
					return
				}
			}
			auth.ClearCookie(c)
		}
		c.JSON(http.StatusOK, gin.H{"message": "Logged out.", "redirect": "/"})
	}
}

func (s *Server) ChangePassword(c *gin.Context) {
	var body passwordRequest
	if err := c.ShouldBind(&body); err != nil {
		jsonError(c, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}
	if err := s.Identity.ChangePassword(c.Request.Context(), auth.Principal(c), body.Password); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Password updated."})
}

// -----------------------------
// Admin: accounts
// -----------------------------

func (s *Server) ListCoordinators(c *gin.Context) {
	out, err := s.Identity.ListCoordinators(c.Request.Context(), auth.Principal(c))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) CreateCoordinator(c *gin.Context) {
	var body coordinatorRequest
	if err := c.ShouldBind(&body); err != nil {
		jsonError(c, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}
	coord, err := s.Identity.CreateCoordinator(c.Request.Context(), auth.Principal(c), body.Username, body.Password, body.Department)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Coordinator created successfully.", "coordinator": coord})
}

func (s *Server) DeleteCoordinator(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	if err := s.Identity.DeleteCoordinator(c.Request.Context(), auth.Principal(c), id); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Coordinator deleted."})
}

func (s *Server) ListStudents(c *gin.Context) {
	out, err := s.Identity.ListStudents(c.Request.Context(), auth.Principal(c))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) DeleteStudent(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	if err := s.Identity.DeleteStudent(c.Request.Context(), auth.Principal(c), id); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Student account deleted."})
}

// -----------------------------
// Student: profile
// -----------------------------

func (s *Server) StudentProfile(c *gin.Context) {
	st, err := s.Identity.Student(c.Request.Context(), auth.Principal(c))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (s *Server) UpdateStudentProfile(c *gin.Context) {
	var body profileRequest
	if err := c.ShouldBind(&body); err != nil {
		jsonError(c, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}
	st, err := s.Identity.UpdateStudentProfile(c.Request.Context(), auth.Principal(c), body.Email, body.Password)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Profile updated successfully.", "student": st})
}
