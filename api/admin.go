/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/blnkfinance/economy"
	"github.com/blnkfinance/economy/internal/apierror"
	"github.com/blnkfinance/economy/internal/backups"
)

// Backup flushes dirty documents, then archives them (and uploads the archive
// when a bucket is configured).
func (a Api) Backup(c *gin.Context) {
	if a.economy.Store == nil {
		respondError(c, apierror.NewAPIError(apierror.ErrBadRequest, "no document store configured", nil))
		return
	}

	ctx := c.Request.Context()
	if err := a.economy.SaveIfNeeded(ctx); err != nil {
		respondError(c, err)
		return
	}

	path, err := backups.Run(ctx, a.economy.Config.Backup, a.economy.Store, append(a.economy.Documents(), economy.DefaultClockDocument), nil)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"path": path})
}
