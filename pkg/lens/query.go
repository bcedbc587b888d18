/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package lens

// GraphQL documents sent to the API.
const (
	deviceSearchQuery = `query allDevices($params: DeviceFindArgs) {
  deviceSearch(params: $params) {
    edges {
      node {
        id
        supportsSettings
        supportsSoftwareUpdate
        callStatus
        tags
        etag
        name
        tenantId
        productId
        organization
        manufacturer
        hardwareFamily
        hardwareModel
        hardwareRevision
        softwareVersion
        softwareBuild
        externalIp
        internalIp
        macAddress
        serialNumber
        connected
        activeApplicationName
        activeApplicationVersion
        provisioningEnabled
        lastConfigRequestDate
        lastDetected
        shipmentDate
        hardwareProduct
        proxyAgent
        proxyAgentId
        proxyAgentVersion
        usbVendorId
        usbProductId
        dateRegistered
        hasPeripherals
        allPeripheralsLinked
        inVirtualDevice
        user { name }
        room { name }
        model {
          name
          description
          hardwareFamily { name }
          hardwareManufacturer { name }
        }
        site { name }
        systemStatus {
          data {
            com {
              poly {
                device {
                  status {
                    provisioning { state }
                    globaldirectory { state }
                    ipnetwork { state }
                    trackablecamera { state }
                    camera { state }
                    audio { state }
                    remotecontrol { state }
                    logthreshold { state }
                  }
                }
              }
            }
          }
        }
        connections { name macAddress softwareVersion }
        location { coordinate { latitude longitude } }
        entitlements { productSerial licenseKey date endDate expired }
        bandwidth { endTime downloadMbps pingJitterMs pingLatencyMs pingLossPercent uploadMbps }
      }
    }
    pageInfo { totalCount countOnPage nextToken hasNextPage }
  }
}`

	summaryQuery = `query getSummary($params: DeviceFindArgs) {
  countDevices
  calculateQueryCost { queryCost costUsed costRemaining secondsToReset }
  tenantCount
  tenants { id name type memberCount }
  deviceSearch(params: $params) {
    pageInfo { totalCount countOnPage nextToken hasNextPage }
  }
}`

	rebootDeviceMutation = `mutation RebootDevice($deviceId: String!) {
  rebootDevice(deviceId: $deviceId) { success error }
}`
)
