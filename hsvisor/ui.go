//go:build !plan9 && !js && !wasip1

// Copyright 2016 The Govisor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use file except in compliance with the License.
// You may obtain a copy of the license at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package main

import (
	"github.com/rs/zerolog"

	"github.com/gdamore/hsvisor/hsvisor/ui"
	"github.com/gdamore/hsvisor/rest"
)

func doUI(client *rest.Client, url string, logger zerolog.Logger) error {
	return ui.NewApp(client, url, logger).Run()
}
